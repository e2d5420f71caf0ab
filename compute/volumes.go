package compute

import (
	gocontext "context"
	"time"

	"github.com/gophercloud/gophercloud/openstack/blockstorage/v2/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/volumeattach"
	"github.com/pkg/errors"

	"github.com/stackhand/novactl/context"
	"github.com/stackhand/novactl/metrics"
	"github.com/stackhand/novactl/poll"
)

const (
	// volume status values the attach/detach waits look for
	volumeStatusInUse     = "in-use"
	volumeStatusAvailable = "available"
)

// VolumeAttachment is one attachment of a volume to a server.
type VolumeAttachment struct {
	ID       string `json:"id"`
	Device   string `json:"device"`
	ServerID string `json:"server_id"`
	VolumeID string `json:"volume_id"`
}

// Volume is the plain view of a block volume.
type Volume struct {
	Name        string             `json:"name"`
	Size        int                `json:"size"`
	ID          string             `json:"id"`
	Description string             `json:"description"`
	Attachments []VolumeAttachment `json:"attachments"`
	Status      string             `json:"status"`
}

// VolumeListOpts filters a volume list.
type VolumeListOpts struct {
	Name   string
	Status string
}

// VolumeList returns all block volumes matching the given filter, keyed
// by name.
func (c *Client) VolumeList(opts VolumeListOpts) (map[string]Volume, error) {
	pages, err := volumes.List(c.volume, volumes.ListOpts{
		Name:   opts.Name,
		Status: opts.Status,
	}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list volumes")
	}

	all, err := volumes.ExtractVolumes(pages)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't extract volumes")
	}

	ret := map[string]Volume{}
	for i := range all {
		vol := volumeFromSDK(&all[i])
		ret[vol.Name] = vol
	}
	return ret, nil
}

// VolumeShow finds one volume by its display name.
func (c *Client) VolumeShow(name string) (*Volume, error) {
	all, err := c.VolumeList(VolumeListOpts{Name: name})
	if err != nil {
		return nil, err
	}

	vol, ok := all[name]
	if !ok {
		return nil, &NotFoundError{Kind: "volume", Name: name}
	}
	return &vol, nil
}

// VolumeCreate creates a block volume and returns its state as reported
// after creation.
func (c *Client) VolumeCreate(name string, size int, snapshot, voltype string) (*Volume, error) {
	created, err := volumes.Create(c.volume, volumes.CreateOpts{
		Size:       size,
		Name:       name,
		VolumeType: voltype,
		SnapshotID: snapshot,
	}).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "error creating volume")
	}

	return c.volumeGet(created.ID)
}

// VolumeDelete deletes the volume with the given display name.
func (c *Client) VolumeDelete(name string) error {
	vol, err := c.VolumeShow(name)
	if err != nil {
		return err
	}

	return errors.Wrap(volumes.Delete(c.volume, vol.ID, nil).ExtractErr(), "error deleting volume")
}

// VolumeAttach attaches the named volume to the named server and waits
// for the volume to report the in-use status.
func (c *Client) VolumeAttach(ctx gocontext.Context, name, serverName, device string, timeout time.Duration) (*Volume, error) {
	logger := context.LoggerFromContext(ctx).WithField("self", "compute")

	vol, err := c.VolumeShow(name)
	if err != nil {
		return nil, err
	}

	server, err := c.ServerByName(serverName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, err = volumeattach.Create(c.compute, server.ID, volumeattach.CreateOpts{
		VolumeID: vol.ID,
		Device:   device,
	}).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "error attaching volume")
	}

	logger.WithField("volume", name).Info("waiting for volume to be attached")

	timeout = c.timeoutOr(timeout)
	outcome := poll.Until(ctx,
		func() (*Volume, error) { return c.volumeGet(vol.ID) },
		func(v *Volume) bool { return v.Status == volumeStatusInUse },
		poll.Opts{Name: "volume-attach", Timeout: timeout, Interval: c.interval()})

	attached, ok := outcome.Ready()
	if !ok {
		metrics.Mark("novactl.compute.volume.attach.timeout")
		return nil, &WaitTimeoutError{Op: "attach", Resource: name, Timeout: timeout}
	}

	metrics.TimeSince("novactl.compute.volume.attach", start)
	return attached, nil
}

// VolumeDetach detaches the named volume from the named server and waits
// for the volume to report the available status.
func (c *Client) VolumeDetach(ctx gocontext.Context, name, serverName string, timeout time.Duration) (*Volume, error) {
	logger := context.LoggerFromContext(ctx).WithField("self", "compute")

	vol, err := c.VolumeShow(name)
	if err != nil {
		return nil, err
	}

	if len(vol.Attachments) == 0 {
		return nil, errors.Errorf("volume %q has no attachments", name)
	}

	server, err := c.ServerByName(serverName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = volumeattach.Delete(c.compute, server.ID, vol.Attachments[0].ID).ExtractErr()
	if err != nil {
		return nil, errors.Wrap(err, "error detaching volume")
	}

	logger.WithField("volume", name).Info("waiting for volume to be detached")

	timeout = c.timeoutOr(timeout)
	outcome := poll.Until(ctx,
		func() (*Volume, error) { return c.volumeGet(vol.ID) },
		func(v *Volume) bool { return v.Status == volumeStatusAvailable },
		poll.Opts{Name: "volume-detach", Timeout: timeout, Interval: c.interval()})

	detached, ok := outcome.Ready()
	if !ok {
		metrics.Mark("novactl.compute.volume.detach.timeout")
		return nil, &WaitTimeoutError{Op: "detach", Resource: name, Timeout: timeout}
	}

	metrics.TimeSince("novactl.compute.volume.detach", start)
	return detached, nil
}

func (c *Client) volumeGet(id string) (*Volume, error) {
	sdkVol, err := volumes.Get(c.volume, id).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't fetch volume")
	}

	vol := volumeFromSDK(sdkVol)
	return &vol, nil
}

func volumeFromSDK(v *volumes.Volume) Volume {
	vol := Volume{
		Name:        v.Name,
		Size:        v.Size,
		ID:          v.ID,
		Description: v.Description,
		Status:      v.Status,
		Attachments: []VolumeAttachment{},
	}

	for _, att := range v.Attachments {
		vol.Attachments = append(vol.Attachments, VolumeAttachment{
			ID:       att.ID,
			Device:   att.Device,
			ServerID: att.ServerID,
			VolumeID: att.VolumeID,
		})
	}

	return vol
}
