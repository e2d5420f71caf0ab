package compute

import (
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/images"
	"github.com/pkg/errors"
)

// Image is the plain view of a server image as reported by the compute
// images proxy. MinDisk/MinRAM are optional and reported as zero when the
// deployment omits them.
type Image struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Created  string                 `json:"created"`
	Updated  string                 `json:"updated"`
	Metadata map[string]interface{} `json:"metadata"`
	MinDisk  int                    `json:"minDisk,omitempty"`
	MinRAM   int                    `json:"minRam,omitempty"`
}

// ImageList returns server images keyed by name. A non-empty name narrows
// the result to that image only.
func (c *Client) ImageList(name string) (map[string]Image, error) {
	pages, err := images.ListDetail(c.compute, images.ListOpts{}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list images")
	}

	all, err := images.ExtractImages(pages)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't extract images")
	}

	ret := map[string]Image{}
	for _, img := range all {
		ret[img.Name] = Image{
			ID:       img.ID,
			Name:     img.Name,
			Status:   img.Status,
			Progress: img.Progress,
			Created:  img.Created,
			Updated:  img.Updated,
			Metadata: img.Metadata,
			MinDisk:  img.MinDisk,
			MinRAM:   img.MinRAM,
		}
	}

	if name != "" {
		img, ok := ret[name]
		if !ok {
			return nil, &NotFoundError{Kind: "image", Name: name}
		}
		return map[string]Image{name: img}, nil
	}

	return ret, nil
}

// ImageMetaSet merges the given metadata into an image. Either id or name
// must identify the image. There is no SDK wrapper for the images-proxy
// metadata endpoints, so the request goes through the raw service client.
func (c *Client) ImageMetaSet(id, name string, metadata map[string]string) (map[string]string, error) {
	id, err := c.resolveImageID(id, name)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Metadata map[string]string `json:"metadata"`
	}
	_, err = c.compute.Post(c.compute.ServiceURL("images", id, "metadata"),
		map[string]interface{}{"metadata": metadata},
		&resp,
		&gophercloud.RequestOpts{OkCodes: []int{200}})
	if err != nil {
		return nil, errors.Wrap(err, "error setting image metadata")
	}

	return resp.Metadata, nil
}

// ImageMetaDelete removes the given metadata keys from an image. Either
// id or name must identify the image.
func (c *Client) ImageMetaDelete(id, name string, keys []string) error {
	id, err := c.resolveImageID(id, name)
	if err != nil {
		return err
	}

	for _, key := range keys {
		_, err := c.compute.Delete(c.compute.ServiceURL("images", id, "metadata", key),
			&gophercloud.RequestOpts{OkCodes: []int{204}})
		if err != nil {
			return errors.Wrapf(err, "error deleting image metadata key %q", key)
		}
	}

	return nil
}

func (c *Client) resolveImageID(id, name string) (string, error) {
	if name != "" {
		resolved, err := images.IDFromName(c.compute, name)
		if err != nil {
			return "", errors.Wrap(err, "couldn't resolve image name")
		}
		id = resolved
	}

	if id == "" {
		return "", fmt.Errorf("a valid image name or id was not specified")
	}

	return id, nil
}
