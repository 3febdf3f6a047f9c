// Package polarisclient provides the primary entry point for constructing a
// Rubrik Polaris GraphQL client that implements the polaris.Client interface.
//
// It resolves the API base URL, picks the authentication flow and builds the
// operation registry from the bundled templates. Most applications import
// polarisclient to build a client and then call operations by name.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//	  "time"
//
//	  "github.com/fivetwenty-io/polaris-client/pkg/polaris"
//	  "github.com/fivetwenty-io/polaris-client/pkg/polarisclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  // Service account keyfile; the base URL comes from access_token_uri.
//	  cli, err := polarisclient.NewWithKeyfile(ctx, "/etc/rubrik/keyfile.json")
//	  if err != nil { log.Fatal(err) }
//
//	  // Or an account domain with username and password.
//	  cli, err = polarisclient.New(ctx, &polaris.Config{
//	    Domain:   "acme",
//	    Username: "user",
//	    Password: "pass",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // Every page of a paginated operation.
//	  slas, err := cli.CollectAll(ctx, "core_sla_domains", nil, time.Minute)
//	  if err != nil { log.Fatal(err) }
//	  _ = slas
//	}
//
// # Environment
//
// ConfigFromEnv reads the same settings from rubrik_* variables, falling back
// to the older rubrik_polaris_* names.
//
// # Helpers
//
// The package also provides convenience constructors NewWithToken,
// NewWithPassword, NewWithServiceAccount and NewWithKeyfile that wrap New
// with the appropriate configuration.
package polarisclient
