package polaris

import (
	"encoding/json"
	"time"
)

// OperationCategory tells queries from mutations.
type OperationCategory string

// Operation categories.
const (
	CategoryQuery    OperationCategory = "query"
	CategoryMutation OperationCategory = "mutation"
)

// VariableSpec describes one declared variable of an operation.
type VariableSpec struct {
	Name string `json:"name" yaml:"name"`
	// Type is the innermost named type, e.g. "UUID" for "[UUID!]!".
	Type string `json:"type" yaml:"type"`
	// RawType is the declared type as written.
	RawType  string `json:"raw_type" yaml:"raw_type"`
	Required bool   `json:"required" yaml:"required"`
	IsList   bool   `json:"is_list"  yaml:"is_list"`
	// Default is the raw default literal, valid when HasDefault is set.
	Default    string `json:"default,omitempty" yaml:"default,omitempty"`
	HasDefault bool   `json:"has_default"       yaml:"has_default"`
}

// OperationDefinition is a parsed operation template.
type OperationDefinition struct {
	Name     string            `json:"name"     yaml:"name"`
	Category OperationCategory `json:"category" yaml:"category"`
	// OperationName is sent as operationName; empty for anonymous operations.
	OperationName string `json:"operation_name" yaml:"operation_name"`
	// Query is the template text after the placeholder rewrite.
	Query string `json:"query" yaml:"query"`
	// SelectionField is the response key of the first top-level field.
	SelectionField string         `json:"selection_field" yaml:"selection_field"`
	Variables      []VariableSpec `json:"variables"       yaml:"variables"`
	Paginated      bool           `json:"paginated"       yaml:"paginated"`
}

// Variable returns the spec of the named variable.
func (d OperationDefinition) Variable(name string) (VariableSpec, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}

	return VariableSpec{}, false
}

// RawResponse is one decoded GraphQL response.
type RawResponse struct {
	Operation      string
	SelectionField string
	// Body holds the response bytes as received.
	Body json.RawMessage
	// Document is Body decoded.
	Document map[string]interface{}
}

// Data returns the data object, or nil when absent.
func (r *RawResponse) Data() map[string]interface{} {
	if r == nil || r.Document == nil {
		return nil
	}

	data, _ := r.Document["data"].(map[string]interface{})

	return data
}

// Field returns the value under data[SelectionField].
func (r *RawResponse) Field() (interface{}, bool) {
	data := r.Data()
	if data == nil {
		return nil, false
	}

	v, ok := data[r.SelectionField]

	return v, ok
}

// PageInfo is the cursor state of a connection page.
type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

// TaskHandle identifies a server-side task chain.
type TaskHandle string

// TaskState is the status of a task chain.
type TaskState string

// Task states.
const (
	TaskQueued    TaskState = "QUEUED"
	TaskRunning   TaskState = "RUNNING"
	TaskSucceeded TaskState = "SUCCEEDED"
	TaskFailed    TaskState = "FAILED"
	TaskUnknown   TaskState = "UNKNOWN"
)

// Terminal reports whether no further transitions are expected.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskStatus is the last observed status of one handle.
type TaskStatus struct {
	Handle TaskHandle `json:"handle" yaml:"handle"`
	State  TaskState  `json:"state"  yaml:"state"`
	// ServerState is the state string as reported by the server.
	ServerState string    `json:"server_state,omitempty" yaml:"server_state,omitempty"`
	Error       string    `json:"error,omitempty"        yaml:"error,omitempty"`
	Polls       int       `json:"polls"                  yaml:"polls"`
	UpdatedAt   time.Time `json:"updated_at"             yaml:"updated_at"`
}

// MonitorOptions tunes a monitoring session. Zero values take defaults.
type MonitorOptions struct {
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// Timeout is the overall deadline of the session.
	Timeout time.Duration
	// MaxConcurrent bounds the number of concurrent pollers.
	MaxConcurrent int
	// RequestTimeout bounds each status request.
	RequestTimeout time.Duration
}

// MonitorResult is the outcome of a monitoring session.
type MonitorResult struct {
	// Aggregate is SUCCEEDED only if every handle succeeded.
	Aggregate TaskState                 `json:"aggregate" yaml:"aggregate"`
	Statuses  map[TaskHandle]TaskStatus `json:"statuses"  yaml:"statuses"`
	// FirstFailure is the first handle observed to fail, if any.
	FirstFailure *TaskStatus `json:"first_failure,omitempty" yaml:"first_failure,omitempty"`
}

// Succeeded reports whether the aggregate status is SUCCEEDED.
func (r *MonitorResult) Succeeded() bool {
	return r != nil && r.Aggregate == TaskSucceeded
}
