package compute

import (
	gocontext "context"
	"encoding/json"
	"time"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/lockunlock"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/suspendresume"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/images"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/pkg/errors"

	"github.com/stackhand/novactl/context"
	"github.com/stackhand/novactl/metrics"
	"github.com/stackhand/novactl/poll"
)

// ResourceRef is the id+links shape nova uses to point at a flavor or
// image from a server record.
type ResourceRef struct {
	ID    string        `json:"id"`
	Links []interface{} `json:"links,omitempty"`
}

// Server is the summary view of a server, as reported by the plain server
// list.
type Server struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	AccessIPv4 string      `json:"accessIPv4"`
	AccessIPv6 string      `json:"accessIPv6"`
	Flavor     ResourceRef `json:"flavor"`
	Image      ResourceRef `json:"image"`
}

// ServerHostAttributes are the OS-EXT-SRV-ATTR extension fields. Only
// present for admin callers.
type ServerHostAttributes struct {
	Host               string `json:"host,omitempty"`
	HypervisorHostname string `json:"hypervisor_hostname,omitempty"`
	InstanceName       string `json:"instance_name,omitempty"`
}

// ServerExtendedStatus are the OS-EXT-STS extension fields.
type ServerExtendedStatus struct {
	PowerState *int   `json:"power_state,omitempty"`
	TaskState  string `json:"task_state,omitempty"`
	VMState    string `json:"vm_state,omitempty"`
}

// ServerDetail is the detailed view of a server. Extension attributes are
// modeled as explicit optional fields instead of being sniffed out of the
// raw response.
type ServerDetail struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	Status         string                   `json:"status"`
	AccessIPv4     string                   `json:"accessIPv4"`
	AccessIPv6     string                   `json:"accessIPv6"`
	Addresses      map[string]interface{}   `json:"addresses"`
	Created        time.Time                `json:"created"`
	Updated        time.Time                `json:"updated"`
	HostID         string                   `json:"hostId"`
	Flavor         ResourceRef              `json:"flavor"`
	Image          ResourceRef              `json:"image"`
	KeyName        string                   `json:"key_name"`
	Links          []interface{}            `json:"links"`
	Metadata       map[string]string        `json:"metadata"`
	Progress       int                      `json:"progress"`
	TenantID       string                   `json:"tenant_id"`
	UserID         string                   `json:"user_id"`
	SecurityGroups []map[string]interface{} `json:"security_groups,omitempty"`
	DiskConfig     string                   `json:"OS-DCF:diskConfig,omitempty"`
	HostAttributes *ServerHostAttributes    `json:"OS-EXT-SRV-ATTR,omitempty"`
	ExtendedStatus *ServerExtendedStatus    `json:"OS-EXT-STS,omitempty"`
}

// Node is the libcloud-shaped summary of a booted server, kept for
// configuration-management callers that normalize across providers.
type Node struct {
	ID         string    `json:"id"`
	Image      string    `json:"image"`
	Size       string    `json:"size"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PublicIPs  []string  `json:"public_ips,omitempty"`
	PrivateIPs []string  `json:"private_ips,omitempty"`
	Extra      NodeExtra `json:"extra"`
}

// NodeExtra carries the provider-specific leftovers of a Node.
type NodeExtra struct {
	Metadata map[string]string `json:"metadata"`
	AccessIP string            `json:"access_ip"`
	Password string            `json:"password,omitempty"`
}

// serverWithExt decodes the extension attributes nova inlines into server
// records alongside the standard fields.
type serverWithExt struct {
	servers.Server
	ServerExtFields
}

type ServerExtFields struct {
	DiskConfig         string `json:"OS-DCF:diskConfig"`
	TaskState          string `json:"OS-EXT-STS:task_state"`
	VMState            string `json:"OS-EXT-STS:vm_state"`
	PowerState         *int   `json:"OS-EXT-STS:power_state"`
	Host               string `json:"OS-EXT-SRV-ATTR:host"`
	HypervisorHostname string `json:"OS-EXT-SRV-ATTR:hypervisor_hostname"`
	InstanceName       string `json:"OS-EXT-SRV-ATTR:instance_name"`
}

// UnmarshalJSON decodes the standard fields through the SDK type and the
// extension fields separately; the SDK type's own UnmarshalJSON would
// otherwise be promoted and swallow them.
func (s *serverWithExt) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &s.Server); err != nil {
		return err
	}
	return json.Unmarshal(b, &s.ServerExtFields)
}

// BootOpts describes the server to boot. FlavorRef and ImageRef are ids;
// use FlavorRef/ImageRef resolution helpers when only names are known.
type BootOpts struct {
	Name             string
	FlavorRef        string
	ImageRef         string
	SecurityGroups   []string
	Networks         []string
	AvailabilityZone string
	KeyName          string
	Metadata         map[string]string

	// Timeout bounds the wait for the booted server to become
	// queryable. Zero means the client-wide wait timeout.
	Timeout time.Duration
}

// ServerList returns the summary view of all servers, keyed by name.
func (c *Client) ServerList() (map[string]Server, error) {
	all, err := c.listServers()
	if err != nil {
		return nil, err
	}

	ret := map[string]Server{}
	for _, item := range all {
		ret[item.Name] = Server{
			ID:         item.ID,
			Name:       item.Name,
			Status:     item.Status,
			AccessIPv4: item.AccessIPv4,
			AccessIPv6: item.AccessIPv6,
			Flavor:     resourceRef(item.Flavor),
			Image:      resourceRef(item.Image),
		}
	}
	return ret, nil
}

// ServerListDetailed returns the detailed view of all servers, keyed by
// name.
func (c *Client) ServerListDetailed() (map[string]ServerDetail, error) {
	all, err := c.listServers()
	if err != nil {
		return nil, err
	}

	ret := map[string]ServerDetail{}
	for i := range all {
		detail := serverDetailFromSDK(&all[i])
		ret[detail.Name] = detail
	}
	return ret, nil
}

// ServerShow returns the detailed view of one server.
func (c *Client) ServerShow(id string) (*ServerDetail, error) {
	var s serverWithExt
	err := servers.Get(c.compute, id).ExtractInto(&s)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't fetch server")
	}

	detail := serverDetailFromSDK(&s)
	return &detail, nil
}

// ServerByName finds a server by its name.
func (c *Client) ServerByName(name string) (*ServerDetail, error) {
	all, err := c.ServerListDetailed()
	if err != nil {
		return nil, err
	}

	detail, ok := all[name]
	if !ok {
		return nil, &NotFoundError{Kind: "server", Name: name}
	}
	return &detail, nil
}

// ServerShowLibcloud returns the libcloud-shaped summary of one server,
// including the boot admin password when this client booted it.
func (c *Client) ServerShowLibcloud(id string) (*Node, error) {
	detail, err := c.ServerShow(id)
	if err != nil {
		return nil, err
	}

	node := &Node{
		ID:    detail.ID,
		Image: detail.Image.ID,
		Size:  detail.Flavor.ID,
		Name:  detail.Name,
		State: detail.Status,
		Extra: NodeExtra{
			Metadata: detail.Metadata,
			AccessIP: detail.AccessIPv4,
			Password: c.passwordFor(detail.ID),
		},
	}

	if _, ok := detail.Addresses["public"]; ok {
		node.PublicIPs = ipsFromAddresses(detail.Addresses, "public")
		node.PrivateIPs = ipsFromAddresses(detail.Addresses, "private")
	}

	return node, nil
}

// Boot creates a server and waits for it to become queryable, returning
// the libcloud-shaped summary. The admin password is remembered so later
// ServerShowLibcloud calls can include it.
func (c *Client) Boot(ctx gocontext.Context, opts BootOpts) (*Node, error) {
	logger := context.LoggerFromContext(ctx).WithField("self", "compute")

	createOpts := servers.CreateOpts{
		Name:             opts.Name,
		FlavorRef:        opts.FlavorRef,
		ImageRef:         opts.ImageRef,
		SecurityGroups:   opts.SecurityGroups,
		AvailabilityZone: opts.AvailabilityZone,
		Metadata:         opts.Metadata,
	}
	if len(opts.Networks) > 0 {
		nets := make([]servers.Network, 0, len(opts.Networks))
		for _, uuid := range opts.Networks {
			nets = append(nets, servers.Network{UUID: uuid})
		}
		createOpts.Networks = nets
	}

	var builder servers.CreateOptsBuilder = createOpts
	if opts.KeyName != "" {
		builder = keypairs.CreateOptsExt{
			CreateOptsBuilder: createOpts,
			KeyName:           opts.KeyName,
		}
	}

	start := time.Now()
	created, err := servers.Create(c.compute, builder).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "error creating server")
	}
	c.rememberPassword(created.ID, created.AdminPass)

	logger.WithField("id", created.ID).Info("booting server, waiting for it to become queryable")

	timeout := c.timeoutOr(opts.Timeout)
	outcome := poll.Until(ctx,
		func() (*Node, error) { return c.ServerShowLibcloud(created.ID) },
		func(*Node) bool { return true },
		poll.Opts{Name: "boot", Timeout: timeout, Interval: c.interval()})

	node, ok := outcome.Ready()
	if !ok {
		metrics.Mark("novactl.compute.boot.timeout")
		return nil, &WaitTimeoutError{Op: "boot", Resource: opts.Name, Timeout: timeout}
	}

	metrics.TimeSince("novactl.compute.boot", start)
	logger.WithField("id", created.ID).Info("booted server")
	return node, nil
}

// Delete deletes a server.
func (c *Client) Delete(id string) error {
	return errors.Wrap(servers.Delete(c.compute, id).ExtractErr(), "error deleting server")
}

// Suspend suspends a server.
func (c *Client) Suspend(id string) error {
	return errors.Wrap(suspendresume.Suspend(c.compute, id).ExtractErr(), "error suspending server")
}

// Resume resumes a suspended server.
func (c *Client) Resume(id string) error {
	return errors.Wrap(suspendresume.Resume(c.compute, id).ExtractErr(), "error resuming server")
}

// Lock locks a server.
func (c *Client) Lock(id string) error {
	return errors.Wrap(lockunlock.Lock(c.compute, id).ExtractErr(), "error locking server")
}

// Unlock unlocks a server.
func (c *Client) Unlock(id string) error {
	return errors.Wrap(lockunlock.Unlock(c.compute, id).ExtractErr(), "error unlocking server")
}

// FlavorRef resolves a flavor name to its id.
func (c *Client) FlavorRef(name string) (string, error) {
	id, err := flavors.IDFromName(c.compute, name)
	return id, errors.Wrap(err, "couldn't resolve flavor name")
}

// ImageRef resolves an image name to its id.
func (c *Client) ImageRef(name string) (string, error) {
	id, err := images.IDFromName(c.compute, name)
	return id, errors.Wrap(err, "couldn't resolve image name")
}

func (c *Client) listServers() ([]serverWithExt, error) {
	pages, err := servers.List(c.compute, servers.ListOpts{}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list servers")
	}

	var all []serverWithExt
	err = servers.ExtractServersInto(pages, &all)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't extract servers")
	}
	return all, nil
}

func serverDetailFromSDK(s *serverWithExt) ServerDetail {
	detail := ServerDetail{
		ID:             s.ID,
		Name:           s.Name,
		Status:         s.Status,
		AccessIPv4:     s.AccessIPv4,
		AccessIPv6:     s.AccessIPv6,
		Addresses:      s.Addresses,
		Created:        s.Created,
		Updated:        s.Updated,
		HostID:         s.HostID,
		Flavor:         resourceRef(s.Flavor),
		Image:          resourceRef(s.Image),
		KeyName:        s.KeyName,
		Links:          s.Links,
		Metadata:       s.Metadata,
		Progress:       s.Progress,
		TenantID:       s.TenantID,
		UserID:         s.UserID,
		SecurityGroups: s.SecurityGroups,
		DiskConfig:     s.DiskConfig,
	}

	if s.Host != "" || s.HypervisorHostname != "" || s.InstanceName != "" {
		detail.HostAttributes = &ServerHostAttributes{
			Host:               s.Host,
			HypervisorHostname: s.HypervisorHostname,
			InstanceName:       s.InstanceName,
		}
	}

	if s.PowerState != nil || s.TaskState != "" || s.VMState != "" {
		detail.ExtendedStatus = &ServerExtendedStatus{
			PowerState: s.PowerState,
			TaskState:  s.TaskState,
			VMState:    s.VMState,
		}
	}

	return detail
}

func resourceRef(m map[string]interface{}) ResourceRef {
	ref := ResourceRef{}
	if id, ok := m["id"].(string); ok {
		ref.ID = id
	}
	if links, ok := m["links"].([]interface{}); ok {
		ref.Links = links
	}
	return ref
}

func ipsFromAddresses(addresses map[string]interface{}, network string) []string {
	raw, ok := addresses[network].([]interface{})
	if !ok {
		return nil
	}

	ips := []string{}
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if addr, ok := m["addr"].(string); ok {
			ips = append(ips, addr)
		}
	}
	return ips
}
