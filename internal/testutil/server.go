// Package testutil provides a fake Polaris endpoint for tests. GraphQL
// requests are executed against a real schema covering the built-in
// operation templates; the login endpoints issue opaque bearer tokens.
package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/handler"
)

// DefaultPageSize is used when a connection query gives no first.
const DefaultPageSize = 50

// ErrInvalidCursor is returned for an after cursor the server never issued.
var ErrInvalidCursor = errors.New("invalid cursor")

// GraphQLRequest is a decoded GraphQL request body.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// InterceptFunc may answer a GraphQL request itself. Returning false hands
// the request to the schema.
type InterceptFunc func(w http.ResponseWriter, r *http.Request, req GraphQLRequest) bool

type serviceAccount struct {
	secret string
	name   string
}

type task struct {
	states []string
	polls  int
}

// Server is a fake Polaris API mounted under /api.
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	users           map[string]string
	serviceAccounts map[string]serviceAccount
	mfaToken        string
	tokens          map[string]bool
	issued          int
	version         string
	slas            []map[string]interface{}
	clusters        []map[string]interface{}
	tasks           map[string]*task
	onDemandStates  []string
	intercept       InterceptFunc
	requests        []GraphQLRequest

	graphqlCalls atomic.Int64
	sessionCalls atomic.Int64
	tokenCalls   atomic.Int64

	graphql http.Handler
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()

	s := &Server{
		users:           map[string]string{},
		serviceAccounts: map[string]serviceAccount{},
		tokens:          map[string]bool{},
		version:         "v20261017-1",
		tasks:           map[string]*task{},
		onDemandStates:  []string{"RUNNING", "SUCCEEDED"},
	}

	schema, err := s.buildSchema()
	if err != nil {
		tb.Fatalf("failed to build fake schema: %v", err)
	}

	s.graphql = handler.New(&handler.Config{Schema: &schema, Pretty: false})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", s.handleSession)
	mux.HandleFunc("POST /api/client_token", s.handleClientToken)
	mux.HandleFunc("POST /api/graphql", s.handleGraphQL)

	s.Server = httptest.NewServer(mux)
	tb.Cleanup(s.Close)

	return s
}

// BaseURL returns the API base URL.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// AddUser registers username/password credentials.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[username] = password
}

// RequireMFA makes session logins answer with an mfa_token challenge until
// the login is resubmitted with token as the remember token.
func (s *Server) RequireMFA(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mfaToken = token
}

// AddServiceAccount registers service account credentials.
func (s *Server) AddServiceAccount(clientID, secret, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.serviceAccounts[clientID] = serviceAccount{secret: secret, name: name}
}

// IssueToken creates a valid bearer token.
func (s *Server) IssueToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.issueLocked()
}

// Revoke makes a token invalid, as if it expired on the server.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
}

// SetVersion sets the deployment version.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version = v
}

// AddSLADomains adds SLA domains with the given names and returns their ids.
func (s *Server) AddSLADomains(names ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(names))

	for _, n := range names {
		id := uuid.NewString()
		ids = append(ids, id)
		s.slas = append(s.slas, map[string]interface{}{"id": id, "name": n})
	}

	return ids
}

// AddCluster adds a cluster.
func (s *Server) AddCluster(name, version, status string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.clusters = append(s.clusters, map[string]interface{}{
		"id": id, "name": name, "version": version, "status": status,
	})

	return id
}

// AddTask registers a task chain. Each status poll returns the next state;
// the last one repeats.
func (s *Server) AddTask(id string, states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[id] = &task{states: states}
}

// SetOnDemandStates sets the states of task chains created by on-demand
// snapshot requests.
func (s *Server) SetOnDemandStates(states ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onDemandStates = states
}

// TaskPolls returns the number of status polls of a task chain.
func (s *Server) TaskPolls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[id]; ok {
		return t.polls
	}

	return 0
}

// Intercept installs fn in front of the schema.
func (s *Server) Intercept(fn InterceptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intercept = fn
}

// Requests returns the GraphQL requests received so far.
func (s *Server) Requests() []GraphQLRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]GraphQLRequest(nil), s.requests...)
}

// GraphQLCalls returns the number of GraphQL requests.
func (s *Server) GraphQLCalls() int64 { return s.graphqlCalls.Load() }

// SessionCalls returns the number of session login requests.
func (s *Server) SessionCalls() int64 { return s.sessionCalls.Load() }

// ClientTokenCalls returns the number of service account login requests.
func (s *Server) ClientTokenCalls() int64 { return s.tokenCalls.Load() }

func (s *Server) issueLocked() string {
	s.issued++
	token := fmt.Sprintf("token-%d", s.issued)
	s.tokens[token] = true

	return token
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.sessionCalls.Add(1)

	var body struct {
		Username         string `json:"username"`
		Password         string `json:"password"`
		MFARememberToken string `json:"mfa_remember_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 400, "message": "malformed body"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pw, ok := s.users[body.Username]; !ok || pw != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"code": 401, "message": "invalid credentials"})

		return
	}

	if s.mfaToken != "" && body.MFARememberToken != s.mfaToken {
		writeJSON(w, http.StatusOK, map[string]interface{}{"mfa_token": s.mfaToken})

		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": s.issueLocked()})
}

func (s *Server) handleClientToken(w http.ResponseWriter, r *http.Request) {
	s.tokenCalls.Add(1)

	var body struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		Name         string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 400, "message": "malformed body"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sa, ok := s.serviceAccounts[body.ClientID]
	if !ok || sa.secret != body.ClientSecret || sa.name != body.Name {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"code": 401, "message": "invalid client credentials"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": s.issueLocked()})
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	s.graphqlCalls.Add(1)

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	valid := s.tokens[token]
	intercept := s.intercept
	s.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"code":    401,
			"message": "UNAUTHENTICATED: token is invalid or expired",
		})

		return
	}

	var req GraphQLRequest

	body, err := readBody(r)
	if err == nil {
		err = json.Unmarshal(body, &req)
	}

	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 400, "message": "malformed body"})

		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if intercept != nil && intercept(w, r, req) {
		return
	}

	s.graphql.ServeHTTP(w, withBody(r, body))
}

// notFoundError carries the extensions Polaris attaches to errors.
type notFoundError struct {
	message string
}

func (e notFoundError) Error() string { return e.message }

func (e notFoundError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":  http.StatusNotFound,
		"trace": map[string]interface{}{"traceId": "fake-trace-404"},
	}
}

var uuidScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "UUID",
	Description: "A UUID in canonical text form.",
	Serialize: func(value interface{}) interface{} {
		return fmt.Sprint(value)
	},
	ParseValue: parseUUID,
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if v, ok := valueAST.(*ast.StringValue); ok {
			return parseUUID(v.Value)
		}

		return nil
	},
})

func parseUUID(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}

	return id.String()
}

func pageInfoType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"endCursor":   &graphql.Field{Type: graphql.String},
			"hasNextPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		},
	})
}

func connectionType(name string, node *graphql.Object, pageInfo *graphql.Object) *graphql.Object {
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Edge",
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.String},
			"node":   &graphql.Field{Type: node},
		},
	})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Connection",
		Fields: graphql.Fields{
			"edges":    &graphql.Field{Type: graphql.NewList(edge)},
			"pageInfo": &graphql.Field{Type: graphql.NewNonNull(pageInfo)},
		},
	})
}

//nolint:funlen // one place for the whole fake schema
func (s *Server) buildSchema() (graphql.Schema, error) {
	pageInfo := pageInfoType()

	sla := graphql.NewObject(graphql.ObjectConfig{
		Name: "GlobalSlaReply",
		Fields: graphql.Fields{
			"id":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"name": &graphql.Field{Type: graphql.String},
		},
	})

	cluster := graphql.NewObject(graphql.ObjectConfig{
		Name: "Cluster",
		Fields: graphql.Fields{
			"id":      &graphql.Field{Type: graphql.NewNonNull(uuidScalar)},
			"name":    &graphql.Field{Type: graphql.String},
			"version": &graphql.Field{Type: graphql.String},
			"status":  &graphql.Field{Type: graphql.String},
		},
	})

	slaFilter := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "GlobalSlaFilterInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"field": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"text":  &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	clusterSort := graphql.NewEnum(graphql.EnumConfig{
		Name: "ClusterSortByEnum",
		Values: graphql.EnumValueConfigMap{
			"ClusterType": &graphql.EnumValueConfig{Value: "ClusterType"},
			"ClusterName": &graphql.EnumValueConfig{Value: "ClusterName"},
		},
	})

	taskchain := graphql.NewObject(graphql.ObjectConfig{
		Name: "Taskchain",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"taskchainUuid": &graphql.Field{Type: graphql.String},
			"state":         &graphql.Field{Type: graphql.String},
			"error":         &graphql.Field{Type: graphql.String},
		},
	})

	taskchainStatus := graphql.NewObject(graphql.ObjectConfig{
		Name: "GetTaskchainStatusReply",
		Fields: graphql.Fields{
			"taskchain": &graphql.Field{Type: taskchain},
		},
	})

	snapshotChain := graphql.NewObject(graphql.ObjectConfig{
		Name: "WorkloadTaskchain",
		Fields: graphql.Fields{
			"workloadId":    &graphql.Field{Type: graphql.String},
			"taskchainUuid": &graphql.Field{Type: graphql.String},
		},
	})

	snapshotReply := graphql.NewObject(graphql.ObjectConfig{
		Name: "TakeOnDemandSnapshotReply",
		Fields: graphql.Fields{
			"taskchainUuids": &graphql.Field{Type: graphql.NewList(snapshotChain)},
		},
	})

	snapshotInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "TakeOnDemandSnapshotInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"workloadIds": &graphql.InputObjectFieldConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(uuidScalar))),
			},
			"slaId": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	pageArgs := func() graphql.FieldConfigArgument {
		return graphql.FieldConfigArgument{
			"first": &graphql.ArgumentConfig{Type: graphql.Int},
			"after": &graphql.ArgumentConfig{Type: graphql.String},
		}
	}

	slaArgs := pageArgs()
	slaArgs["filter"] = &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(slaFilter))}

	clusterArgs := pageArgs()
	clusterArgs["sortBy"] = &graphql.ArgumentConfig{Type: clusterSort}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"deploymentVersion": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(graphql.ResolveParams) (interface{}, error) {
					s.mu.Lock()
					defer s.mu.Unlock()

					return s.version, nil
				},
			},
			"slaDomains": &graphql.Field{
				Type:    connectionType("GlobalSla", sla, pageInfo),
				Args:    slaArgs,
				Resolve: s.resolveSLADomains,
			},
			"clusterConnection": &graphql.Field{
				Type: connectionType("Cluster", cluster, pageInfo),
				Args: clusterArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s.mu.Lock()
					defer s.mu.Unlock()

					return paginate(s.clusters, p.Args)
				},
			},
			"getKorgTaskchainStatus": &graphql.Field{
				Type: taskchainStatus,
				Args: graphql.FieldConfigArgument{
					"taskchainId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: s.resolveTaskchainStatus,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"takeOnDemandSnapshot": &graphql.Field{
				Type: snapshotReply,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(snapshotInput)},
				},
				Resolve: s.resolveOnDemand,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("building schema: %w", err)
	}

	return schema, nil
}

func (s *Server) resolveSLADomains(p graphql.ResolveParams) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.slas

	filters, _ := p.Args["filter"].([]interface{})
	for _, f := range filters {
		m, _ := f.(map[string]interface{})
		if field, _ := m["field"].(string); field != "NAME" {
			continue
		}

		text, _ := m["text"].(string)

		var matched []map[string]interface{}

		for _, item := range items {
			if name, _ := item["name"].(string); strings.Contains(name, text) {
				matched = append(matched, item)
			}
		}

		items = matched
	}

	return paginate(items, p.Args)
}

func (s *Server) resolveTaskchainStatus(p graphql.ResolveParams) (interface{}, error) {
	id, _ := p.Args["taskchainId"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || len(t.states) == 0 {
		return nil, notFoundError{message: "taskchain " + id + " not found"}
	}

	state := t.states[min(t.polls, len(t.states)-1)]
	t.polls++

	chain := map[string]interface{}{
		"id":            id,
		"taskchainUuid": id,
		"state":         state,
		"error":         "",
	}

	if state == "FAILED" {
		chain["error"] = "task chain " + id + " failed"
	}

	return map[string]interface{}{"taskchain": chain}, nil
}

func (s *Server) resolveOnDemand(p graphql.ResolveParams) (interface{}, error) {
	input, _ := p.Args["input"].(map[string]interface{})
	ids, _ := input["workloadIds"].([]interface{})

	s.mu.Lock()
	defer s.mu.Unlock()

	chains := make([]interface{}, 0, len(ids))

	for _, workload := range ids {
		chainID := uuid.NewString()
		s.tasks[chainID] = &task{states: append([]string(nil), s.onDemandStates...)}
		chains = append(chains, map[string]interface{}{
			"workloadId":    fmt.Sprint(workload),
			"taskchainUuid": chainID,
		})
	}

	return map[string]interface{}{"taskchainUuids": chains}, nil
}

// paginate slices items into a connection page. Cursors are the index of
// the last node returned.
func paginate(items []map[string]interface{}, args map[string]interface{}) (interface{}, error) {
	start := 0

	if after, ok := args["after"].(string); ok && after != "" {
		idx, err := strconv.Atoi(strings.TrimPrefix(after, "cursor-"))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, after)
		}

		start = idx + 1
	}

	size := DefaultPageSize
	if first, ok := args["first"].(int); ok && first > 0 {
		size = first
	}

	start = min(start, len(items))
	end := min(start+size, len(items))

	edges := make([]interface{}, 0, end-start)
	for i := start; i < end; i++ {
		edges = append(edges, map[string]interface{}{
			"cursor": "cursor-" + strconv.Itoa(i),
			"node":   items[i],
		})
	}

	var endCursor interface{}
	if end > start {
		endCursor = "cursor-" + strconv.Itoa(end-1)
	}

	return map[string]interface{}{
		"edges": edges,
		"pageInfo": map[string]interface{}{
			"endCursor":   endCursor,
			"hasNextPage": end < len(items),
		},
	}, nil
}
