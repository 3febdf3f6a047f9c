package polaris

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/buger/jsonparser"
)

// ResultKind tells which field of a Result is populated.
type ResultKind int

// Result kinds.
const (
	ResultRaw ResultKind = iota
	ResultBoolean
	ResultNodes
	ResultValue
)

// String returns the name of the kind.
func (k ResultKind) String() string {
	switch k {
	case ResultBoolean:
		return "boolean"
	case ResultNodes:
		return "nodes"
	case ResultValue:
		return "value"
	default:
		return "raw"
	}
}

// Result is a normalized response.
type Result struct {
	Kind    ResultKind
	Boolean bool
	Nodes   []interface{}
	Value   interface{}
	Raw     interface{}
}

// Interface returns the populated field.
func (r Result) Interface() interface{} {
	switch r.Kind {
	case ResultBoolean:
		return r.Boolean
	case ResultNodes:
		return r.Nodes
	case ResultValue:
		return r.Value
	default:
		return r.Raw
	}
}

// NormalizeJSON normalizes a response body. The first value under "data" is
// taken in document order.
func NormalizeJSON(body []byte) (Result, error) {
	data, dataType, _, err := jsonparser.Get(body, "data")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return Result{}, fmt.Errorf("failed to read response data: %w", err)
	}

	if err != nil || dataType != jsonparser.Object {
		return rawJSON(body)
	}

	var (
		first    []byte
		firstTyp jsonparser.ValueType
		found    bool
	)

	err = jsonparser.ObjectEach(data, func(_ []byte, value []byte, typ jsonparser.ValueType, _ int) error {
		if !found {
			first, firstTyp, found = value, typ, true
		}

		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response data: %w", err)
	}

	if !found {
		return rawJSON(body)
	}

	if firstTyp == jsonparser.Null {
		return normalizeValue(nil), nil
	}

	if firstTyp == jsonparser.String {
		s, err := jsonparser.ParseString(first)
		if err != nil {
			return Result{}, fmt.Errorf("failed to decode response data: %w", err)
		}

		return Result{Kind: ResultValue, Value: s}, nil
	}

	var v interface{}
	if err := json.Unmarshal(first, &v); err != nil {
		return Result{}, fmt.Errorf("failed to decode response data: %w", err)
	}

	return normalizeValue(v), nil
}

// NormalizeResponse normalizes a response using its selection field, falling
// back to the first field of the body.
func NormalizeResponse(r *RawResponse) (Result, error) {
	if r == nil {
		return Result{Kind: ResultRaw}, nil
	}

	if r.SelectionField != "" {
		if v, ok := r.Field(); ok {
			return normalizeValue(v), nil
		}
	}

	if len(r.Body) > 0 {
		return NormalizeJSON(r.Body)
	}

	return Normalize(r.Document), nil
}

// Normalize normalizes an already decoded value. Decoded maps carry no key
// order, so when data holds several fields the lexically first one is used;
// prefer NormalizeJSON or NormalizeResponse when the order matters.
// Anything that is not a response envelope is returned unchanged as Raw.
func Normalize(v interface{}) Result {
	env, ok := v.(map[string]interface{})
	if !ok {
		return Result{Kind: ResultRaw, Raw: v}
	}

	data, ok := env["data"].(map[string]interface{})
	if !ok || len(data) == 0 {
		return Result{Kind: ResultRaw, Raw: v}
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return normalizeValue(data[keys[0]])
}

func normalizeValue(v interface{}) Result {
	switch val := v.(type) {
	case nil:
		return Result{Kind: ResultNodes, Nodes: []interface{}{}}
	case bool:
		return Result{Kind: ResultBoolean, Boolean: val}
	case map[string]interface{}:
		if states, ok := val["states"]; ok {
			return Result{Kind: ResultNodes, Nodes: pluck(states, "name")}
		}

		if edges, ok := val["edges"]; ok {
			return Result{Kind: ResultNodes, Nodes: pluck(edges, "node")}
		}
	}

	return Result{Kind: ResultValue, Value: v}
}

func pluck(list interface{}, key string) []interface{} {
	items, _ := list.([]interface{})

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		out = append(out, m[key])
	}

	return out
}

func rawJSON(body []byte) (Result, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return Result{Kind: ResultRaw, Raw: v}, nil
}
