package compute

import (
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/pkg/errors"
)

// Flavor is the plain view of a machine flavor. RxTxFactor is optional;
// not every deployment exposes it.
type Flavor struct {
	Disk       int      `json:"disk"`
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	RAM        int      `json:"ram"`
	Swap       int      `json:"swap"`
	VCPUs      int      `json:"vcpus"`
	RxTxFactor *float64 `json:"rxtx_factor,omitempty"`
}

// FlavorList returns all available flavors, keyed by name.
func (c *Client) FlavorList() (map[string]Flavor, error) {
	pages, err := flavors.ListDetail(c.compute, flavors.ListOpts{}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list flavors")
	}

	all, err := flavors.ExtractFlavors(pages)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't extract flavors")
	}

	ret := map[string]Flavor{}
	for i := range all {
		fl := flavorFromSDK(&all[i])
		ret[fl.Name] = fl
	}
	return ret, nil
}

// FlavorCreate creates a flavor.
func (c *Client) FlavorCreate(name, id string, ram, disk, vcpus int) (*Flavor, error) {
	created, err := flavors.Create(c.compute, flavors.CreateOpts{
		Name:  name,
		ID:    id,
		RAM:   ram,
		Disk:  &disk,
		VCPUs: vcpus,
	}).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "error creating flavor")
	}

	fl := flavorFromSDK(created)
	return &fl, nil
}

// FlavorDelete deletes the flavor with the given id.
func (c *Client) FlavorDelete(id string) error {
	return errors.Wrap(flavors.Delete(c.compute, id).ExtractErr(), "error deleting flavor")
}

func flavorFromSDK(f *flavors.Flavor) Flavor {
	fl := Flavor{
		Disk:  f.Disk,
		ID:    f.ID,
		Name:  f.Name,
		RAM:   f.RAM,
		Swap:  f.Swap,
		VCPUs: f.VCPUs,
	}

	if f.RxTxFactor != 0 {
		rxtx := f.RxTxFactor
		fl.RxTxFactor = &rxtx
	}

	return fl
}
