// Package polaris provides the public types of the Polaris GraphQL client:
// configuration, operation definitions, normalized results, task monitoring
// results, and the error taxonomy.
//
// # Getting a client
//
//	cli, err := polarisclient.New(ctx, &polaris.Config{
//	  Domain:      "acme",
//	  KeyfilePath: "/etc/polaris/service-account.json",
//	})
//	if err != nil { log.Fatal(err) }
//
//	resp, err := cli.Execute(ctx, "core_polaris_version", nil, 30*time.Second)
//	if err != nil { log.Fatal(err) }
//
//	res, _ := polaris.NormalizeResponse(resp)
//	fmt.Println(res.Interface())
//
// # Pagination
//
// Operations whose selection field selects pageInfo and declare $after are
// fetched page by page:
//
//	it, err := cli.Stream(ctx, "core_sla_domains", nil, time.Minute)
//	for it.HasNext() {
//	  node, err := it.Next()
//	  if err != nil { break }
//	  _ = node
//	}
//
// # Errors
//
// Every failure is an *Error with a Kind. Use IsValidation, IsTransport,
// IsProtocol, IsAuthentication, IsProxy, IsTimeout or errors.Is with the
// Err* sentinels to branch on it.
package polaris
