package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/fivetwenty-io/polaris-client/internal/auth"
	"github.com/fivetwenty-io/polaris-client/internal/constants"
	polarishttp "github.com/fivetwenty-io/polaris-client/internal/http"
	"github.com/fivetwenty-io/polaris-client/internal/registry"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

const rawQueryOp = "raw_query"

type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables"`
}

// Execute implements polaris.Client.Execute.
func (c *Client) Execute(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (*polaris.RawResponse, error) {
	def, err := c.prepare(name, variables, timeout)
	if err != nil {
		return nil, err
	}

	return c.execute(ctx, def, variables, timeout)
}

// ExecuteRaw implements polaris.Client.ExecuteRaw. The text goes through the
// same template grammar as registered operations.
func (c *Client) ExecuteRaw(ctx context.Context, query string, variables map[string]interface{}, timeout time.Duration) (*polaris.RawResponse, error) {
	if err := checkTimeout(rawQueryOp, timeout); err != nil {
		return nil, err
	}

	def, err := registry.Parse(rawQueryOp, query, c.prefix)
	if err != nil {
		return nil, polaris.NewError(polaris.KindValidation, rawQueryOp, err)
	}

	if err := validateVariables(def, variables); err != nil {
		return nil, err
	}

	return c.execute(ctx, def, variables, timeout)
}

// Query implements polaris.Client.Query.
func (c *Client) Query(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (polaris.Result, error) {
	raw, err := c.Execute(ctx, name, variables, timeout)
	if err != nil {
		return polaris.Result{}, err
	}

	result, err := polaris.NormalizeResponse(raw)
	if err != nil {
		return polaris.Result{}, polaris.NewError(polaris.KindProtocol, name, err)
	}

	return result, nil
}

// prepare runs every local check of a call: timeout, operation lookup and
// variables. Nothing is sent when it fails.
func (c *Client) prepare(name string, variables map[string]interface{}, timeout time.Duration) (polaris.OperationDefinition, error) {
	if err := checkTimeout(name, timeout); err != nil {
		return polaris.OperationDefinition{}, err
	}

	def, err := c.registry.Lookup(name)
	if err != nil {
		return polaris.OperationDefinition{}, err
	}

	if err := validateVariables(def, variables); err != nil {
		return polaris.OperationDefinition{}, err
	}

	return def, nil
}

// execute sends the request. A 401 invalidates the token that was used and
// the request is replayed once with fresh headers.
func (c *Client) execute(ctx context.Context, def polaris.OperationDefinition, variables map[string]interface{}, timeout time.Duration) (*polaris.RawResponse, error) {
	if variables == nil {
		variables = map[string]interface{}{}
	}

	raw, token, err := c.roundTrip(ctx, def, variables, timeout)
	if err == nil || token == "" || !polaris.IsUnauthorized(err) {
		return raw, err
	}

	c.logger.Info("Token rejected, re-authenticating", map[string]interface{}{"operation": def.Name})
	c.auth.Invalidate(token)

	raw, _, err = c.roundTrip(ctx, def, variables, timeout)

	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, def polaris.OperationDefinition, variables map[string]interface{}, timeout time.Duration) (*polaris.RawResponse, string, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, "", err
	}

	token := auth.BearerToken(headers)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.httpClient.Post(reqCtx, def.Name, constants.GraphQLPath, graphQLRequest{
		Query:         def.Query,
		OperationName: def.OperationName,
		Variables:     variables,
	}, headers)
	if err != nil {
		return nil, token, err
	}

	raw, err := decodeResponse(def, resp)

	return raw, token, err
}

// decodeResponse turns a GraphQL answer into a RawResponse or a classified
// error. Structured errors win over the HTTP status.
func decodeResponse(def polaris.OperationDefinition, resp *polarishttp.Response) (*polaris.RawResponse, error) {
	var doc map[string]interface{}

	if err := json.Unmarshal(resp.Body, &doc); err != nil || doc == nil {
		if !success(resp.StatusCode) {
			return nil, statusError(def.Name, resp.StatusCode)
		}

		return nil, &polaris.Error{
			Kind:        polaris.KindProtocol,
			Op:          def.Name,
			StatusCode:  resp.StatusCode,
			Description: polaris.StatusDescription(resp.StatusCode),
			Message:     "response is not a JSON object",
			Err:         err,
		}
	}

	if errs, ok := doc["errors"].([]interface{}); ok && len(errs) > 0 {
		return nil, graphQLError(def.Name, resp.StatusCode, errs[0])
	}

	if code, ok := statusCode(doc["code"]); ok && code >= http.StatusBadRequest {
		if message, ok := doc["message"].(string); ok {
			return nil, polaris.NewProtocolError(def.Name, code, message, traceID(doc), nil)
		}
	}

	if !success(resp.StatusCode) {
		return nil, statusError(def.Name, resp.StatusCode)
	}

	return &polaris.RawResponse{
		Operation:      def.Name,
		SelectionField: def.SelectionField,
		Body:           resp.Body,
		Document:       doc,
	}, nil
}

func graphQLError(op string, httpStatus int, entry interface{}) error {
	e, _ := entry.(map[string]interface{})

	message, _ := e["message"].(string)
	path, _ := e["path"].([]interface{})
	extensions, _ := e["extensions"].(map[string]interface{})

	code, ok := statusCode(extensions["code"])
	if !ok {
		code = httpStatus
	}

	return polaris.NewProtocolError(op, code, message, traceID(extensions), path)
}

// traceID reads trace.traceId from m.
func traceID(m map[string]interface{}) string {
	trace, _ := m["trace"].(map[string]interface{})
	id, _ := trace["traceId"].(string)

	return id
}

// statusCode reads a numeric code that may arrive as a number or a string.
func statusCode(v interface{}) (int, bool) {
	switch c := v.(type) {
	case float64:
		return int(c), true
	case string:
		n, err := strconv.Atoi(c)

		return n, err == nil
	default:
		return 0, false
	}
}

func success(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func statusError(op string, status int) error {
	return &polaris.Error{
		Kind:        polaris.KindTransport,
		Op:          op,
		StatusCode:  status,
		Description: polaris.StatusDescription(status),
		Message:     "unexpected HTTP status without error body",
	}
}

func checkTimeout(op string, timeout time.Duration) error {
	if timeout <= 0 {
		return polaris.NewError(polaris.KindValidation, op, fmt.Errorf("%w, got %v", constants.ErrInvalidTimeout, timeout))
	}

	return nil
}

// validateVariables checks required variables are present and list
// variables get lists. Undeclared variables are passed through.
func validateVariables(def polaris.OperationDefinition, variables map[string]interface{}) error {
	for _, spec := range def.Variables {
		v, ok := variables[spec.Name]
		if !ok || v == nil {
			if spec.Required && !spec.HasDefault {
				return polaris.NewError(polaris.KindValidation, def.Name,
					fmt.Errorf("%w: $%s (%s)", constants.ErrMissingVariable, spec.Name, spec.RawType))
			}

			continue
		}

		if spec.IsList && !isList(v) {
			return polaris.NewError(polaris.KindValidation, def.Name,
				fmt.Errorf("%w: $%s (%s) got %T", constants.ErrListVariable, spec.Name, spec.RawType, v))
		}
	}

	return nil
}

func isList(v interface{}) bool {
	kind := reflect.TypeOf(v).Kind()

	return kind == reflect.Slice || kind == reflect.Array
}
