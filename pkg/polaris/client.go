package polaris

import (
	"context"
	"time"
)

// Client is the main interface for the Polaris GraphQL API.
type Client interface {
	// Operations returns the sorted names of the loaded operations.
	Operations() []string
	// Operation returns the definition of a loaded operation.
	Operation(name string) (OperationDefinition, error)

	// Execute performs one round trip for a loaded operation.
	Execute(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (*RawResponse, error)
	// ExecuteRaw performs one round trip for an ad-hoc operation text.
	ExecuteRaw(ctx context.Context, query string, variables map[string]interface{}, timeout time.Duration) (*RawResponse, error)
	// Query executes an operation and normalizes the response.
	Query(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (Result, error)
	// Stream walks every page of a paginated operation.
	Stream(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (NodeIterator, error)
	// CollectAll drains Stream into one list.
	CollectAll(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) ([]interface{}, error)

	// Monitor polls task chains until every one is terminal or the
	// session deadline fires.
	Monitor(ctx context.Context, handles []TaskHandle, opts MonitorOptions) (*MonitorResult, error)

	// Login forces a fresh authentication.
	Login(ctx context.Context) error
	// Logout drops the cached and stored token.
	Logout(ctx context.Context) error
	// AuthState returns the authentication state name.
	AuthState() string

	SLADomains(ctx context.Context, first int) ([]SLADomain, error)
	PolarisVersion(ctx context.Context) (string, error)
	TaskStatus(ctx context.Context, taskchainID string) (*TaskStatus, error)
	SubmitOnDemand(ctx context.Context, req *OnDemandRequest) (*OnDemandResult, error)
	EnumValues(ctx context.Context, enumName string) ([]string, error)
}

// NodeIterator yields the nodes of a paginated operation page by page.
// It is not safe for concurrent use and cannot be restarted.
type NodeIterator interface {
	// HasNext reports whether Next would return a node, fetching the next
	// page when the current one is exhausted.
	HasNext() bool
	// Next returns the next node.
	Next() interface{}
	// Err returns the error that stopped the iteration.
	Err() error
	// All drains the remaining nodes.
	All() ([]interface{}, error)
	// Pages returns the number of pages fetched so far.
	Pages() int
}

// SLADomain is an SLA domain summary.
type SLADomain struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// OnDemandRequest asks for on-demand snapshots of workloads.
type OnDemandRequest struct {
	SnappableIDs []string
	SLAID        string
	// Wait monitors the resulting task chains before returning.
	Wait    bool
	Monitor MonitorOptions
	Timeout time.Duration
}

// OnDemandResult holds the task chains started by an on-demand request.
type OnDemandResult struct {
	Handles []TaskHandle   `json:"handles"          yaml:"handles"`
	Monitor *MonitorResult `json:"monitor,omitempty" yaml:"monitor,omitempty"`
}
