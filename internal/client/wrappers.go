package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// Operations used by the wrappers.
const (
	opSLADomains     = "core_sla_domains"
	opPolarisVersion = "core_polaris_version"
	opOnDemand       = "core_snappable_on_demand"
	opEnumValues     = "core_enum_values"
)

// SLADomains implements polaris.Client.SLADomains. first sets the page size;
// zero leaves it to the server.
func (c *Client) SLADomains(ctx context.Context, first int) ([]polaris.SLADomain, error) {
	vars := map[string]interface{}{}

	if first != 0 {
		v, err := polaris.Validate(polaris.ValidateFirst, "first", first)
		if err != nil {
			return nil, err
		}

		vars["first"] = v
	}

	nodes, err := c.CollectAll(ctx, opSLADomains, vars, c.timeout)
	if err != nil {
		return nil, err
	}

	domains := make([]polaris.SLADomain, 0, len(nodes))

	for _, n := range nodes {
		m, _ := n.(map[string]interface{})
		id, _ := m["id"].(string)
		name, _ := m["name"].(string)
		domains = append(domains, polaris.SLADomain{ID: id, Name: name})
	}

	return domains, nil
}

// PolarisVersion implements polaris.Client.PolarisVersion.
func (c *Client) PolarisVersion(ctx context.Context) (string, error) {
	result, err := c.Query(ctx, opPolarisVersion, nil, c.timeout)
	if err != nil {
		return "", err
	}

	version, ok := result.Value.(string)
	if !ok {
		return "", polaris.NewError(polaris.KindProtocol, opPolarisVersion,
			fmt.Errorf("%w: deploymentVersion is %T", polaris.ErrInvalidValue, result.Interface()))
	}

	return version, nil
}

// TaskStatus implements polaris.Client.TaskStatus.
func (c *Client) TaskStatus(ctx context.Context, taskchainID string) (*polaris.TaskStatus, error) {
	id, err := polaris.Validate(polaris.ValidateID, "taskchain_id", taskchainID)
	if err != nil {
		return nil, err
	}

	status, err := c.fetchStatus(ctx, polaris.TaskHandle(id.(string)), c.timeout)
	if err != nil {
		return nil, err
	}

	status.Polls = 1

	return &status, nil
}

// SubmitOnDemand implements polaris.Client.SubmitOnDemand.
func (c *Client) SubmitOnDemand(ctx context.Context, req *polaris.OnDemandRequest) (*polaris.OnDemandResult, error) {
	if req == nil || len(req.SnappableIDs) == 0 {
		return nil, polaris.NewError(polaris.KindValidation, opOnDemand,
			fmt.Errorf("%w: $snappableIds", constants.ErrMissingVariable))
	}

	ids := make([]string, 0, len(req.SnappableIDs))

	for _, raw := range req.SnappableIDs {
		id, err := polaris.Validate(polaris.ValidateUUID, "snappable_ids", raw)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id.(string))
	}

	vars := map[string]interface{}{"snappableIds": ids}

	if req.SLAID != "" {
		sla, err := polaris.Validate(polaris.ValidateID, "sla_id", req.SLAID)
		if err != nil {
			return nil, err
		}

		vars["slaId"] = sla
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	raw, err := c.Execute(ctx, opOnDemand, vars, timeout)
	if err != nil {
		return nil, err
	}

	handles := HandlesFromResponse(raw)
	if len(handles) == 0 {
		return nil, polaris.NewError(polaris.KindProtocol, opOnDemand, constants.ErrNoTaskHandle)
	}

	result := &polaris.OnDemandResult{Handles: handles}

	if !req.Wait {
		return result, nil
	}

	result.Monitor, err = c.Monitor(ctx, handles, req.Monitor)

	return result, err
}

// EnumValues implements polaris.Client.EnumValues. An enum the server does
// not know yields an empty list.
func (c *Client) EnumValues(ctx context.Context, enumName string) ([]string, error) {
	name, err := polaris.Validate(polaris.ValidateID, "enum_name", enumName)
	if err != nil {
		return nil, err
	}

	result, err := c.Query(ctx, opEnumValues, map[string]interface{}{"enum_name": name}, c.timeout)
	if err != nil {
		return nil, err
	}

	typ, _ := result.Value.(map[string]interface{})
	values, _ := typ["enumValues"].([]interface{})

	out := make([]string, 0, len(values))

	for _, v := range values {
		m, _ := v.(map[string]interface{})
		if s, ok := m["name"].(string); ok {
			out = append(out, s)
		}
	}

	return out, nil
}
