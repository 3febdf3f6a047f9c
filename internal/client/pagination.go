package client

import (
	"context"
	"maps"
	"time"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// NodeIterator walks the pages of one operation. Pages are fetched one at a
// time, only when the nodes of the previous page are used up.
type NodeIterator struct {
	client    *Client
	ctx       context.Context //nolint:containedctx // bound to one lazy stream
	def       polaris.OperationDefinition
	variables map[string]interface{}
	timeout   time.Duration

	nodes []interface{}
	pos   int
	more  bool
	pages int
	err   error
}

var _ polaris.NodeIterator = (*NodeIterator)(nil)

// Stream implements polaris.Client.Stream. Local checks run here, before any
// request; the first page is fetched by the first HasNext. The stream has no
// overall deadline: ctx bounds all pages, timeout bounds each one.
func (c *Client) Stream(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) (polaris.NodeIterator, error) {
	def, err := c.prepare(name, variables, timeout)
	if err != nil {
		return nil, err
	}

	vars := maps.Clone(variables)
	if vars == nil {
		vars = map[string]interface{}{}
	}

	return &NodeIterator{
		client:    c,
		ctx:       ctx,
		def:       def,
		variables: vars,
		timeout:   timeout,
		more:      true,
	}, nil
}

// CollectAll implements polaris.Client.CollectAll. Any failure discards the
// nodes collected so far.
func (c *Client) CollectAll(ctx context.Context, name string, variables map[string]interface{}, timeout time.Duration) ([]interface{}, error) {
	it, err := c.Stream(ctx, name, variables, timeout)
	if err != nil {
		return nil, err
	}

	return it.All()
}

// HasNext reports whether another node is available.
func (it *NodeIterator) HasNext() bool {
	for it.pos >= len(it.nodes) {
		if it.err != nil || !it.more {
			return false
		}

		it.fetch()
	}

	return true
}

// Next returns the next node, or nil when the stream is done.
func (it *NodeIterator) Next() interface{} {
	if !it.HasNext() {
		return nil
	}

	node := it.nodes[it.pos]
	it.pos++

	return node
}

// Err returns the error that ended the stream.
func (it *NodeIterator) Err() error {
	return it.err
}

// Pages returns the number of pages fetched.
func (it *NodeIterator) Pages() int {
	return it.pages
}

// All drains the stream.
func (it *NodeIterator) All() ([]interface{}, error) {
	out := make([]interface{}, 0)

	for it.HasNext() {
		out = append(out, it.Next())
	}

	if it.err != nil {
		return nil, it.err
	}

	return out, nil
}

func (it *NodeIterator) fetch() {
	it.nodes, it.pos = nil, 0

	raw, err := it.client.execute(it.ctx, it.def, it.variables, it.timeout)
	if err != nil {
		it.fail(err)

		return
	}

	it.pages++

	result, err := polaris.NormalizeResponse(raw)
	if err != nil {
		it.fail(polaris.NewError(polaris.KindProtocol, it.def.Name, err))

		return
	}

	switch result.Kind {
	case polaris.ResultNodes:
		it.nodes = result.Nodes
	default:
		it.nodes = []interface{}{result.Interface()}
	}

	it.client.logger.Debug("Fetched page", map[string]interface{}{
		"operation": it.def.Name,
		"page":      it.pages,
		"nodes":     len(it.nodes),
	})

	page, ok := pageInfo(raw)
	if !ok || !page.HasNextPage {
		it.more = false

		return
	}

	if page.EndCursor == "" {
		it.fail(polaris.NewError(polaris.KindProtocol, it.def.Name, constants.ErrMissingCursor))

		return
	}

	it.variables[constants.AfterVariable] = page.EndCursor
}

func (it *NodeIterator) fail(err error) {
	it.err = err
	it.more = false
	it.nodes, it.pos = nil, 0
}

// pageInfo reads data[selectionField].pageInfo.
func pageInfo(raw *polaris.RawResponse) (polaris.PageInfo, bool) {
	field, _ := raw.Field()

	conn, ok := field.(map[string]interface{})
	if !ok {
		return polaris.PageInfo{}, false
	}

	info, ok := conn["pageInfo"].(map[string]interface{})
	if !ok {
		return polaris.PageInfo{}, false
	}

	hasNext, _ := info["hasNextPage"].(bool)
	cursor, _ := info["endCursor"].(string)

	return polaris.PageInfo{EndCursor: cursor, HasNextPage: hasNext}, true
}
