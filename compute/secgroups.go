package compute

import (
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/secgroups"
	"github.com/pkg/errors"
)

// SecGroup is the plain view of a security group.
type SecGroup struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	TenantID    string           `json:"tenant_id"`
	Rules       []secgroups.Rule `json:"rules"`
}

// SecGroupList returns all security groups, keyed by name.
func (c *Client) SecGroupList() (map[string]SecGroup, error) {
	pages, err := secgroups.List(c.compute).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list security groups")
	}

	all, err := secgroups.ExtractSecurityGroups(pages)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't extract security groups")
	}

	ret := map[string]SecGroup{}
	for _, sg := range all {
		ret[sg.Name] = SecGroup{
			ID:          sg.ID,
			Name:        sg.Name,
			Description: sg.Description,
			TenantID:    sg.TenantID,
			Rules:       sg.Rules,
		}
	}
	return ret, nil
}

// SecGroupCreate creates a security group.
func (c *Client) SecGroupCreate(name, description string) (*SecGroup, error) {
	created, err := secgroups.Create(c.compute, secgroups.CreateOpts{
		Name:        name,
		Description: description,
	}).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "error creating security group")
	}

	return &SecGroup{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		TenantID:    created.TenantID,
		Rules:       created.Rules,
	}, nil
}

// SecGroupDelete deletes the security group with the given name.
func (c *Client) SecGroupDelete(name string) error {
	all, err := c.SecGroupList()
	if err != nil {
		return err
	}

	sg, ok := all[name]
	if !ok {
		return &NotFoundError{Kind: "security group", Name: name}
	}

	return errors.Wrap(secgroups.Delete(c.compute, sg.ID).ExtractErr(), "error deleting security group")
}
