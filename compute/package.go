// Package compute wraps the OpenStack compute and block storage APIs for
// callers that want plain name-keyed mappings instead of SDK result types,
// and waits out the asynchronous operations (boot, volume attach, volume
// detach) before returning.
package compute

import (
	gocontext "context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/pkg/errors"

	"github.com/stackhand/novactl/config"
	"github.com/stackhand/novactl/context"
)

// NotFoundError is returned when a name does not resolve to any resource.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// WaitTimeoutError is returned when an asynchronous operation did not
// reach its target status within the wait budget. It means the operation's
// final status is unknown, not that the operation failed.
type WaitTimeoutError struct {
	Op       string
	Resource string
	Timeout  time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s of %q, final status unknown",
		e.Timeout, e.Op, e.Resource)
}

// Client talks to the compute and block storage services of one region.
type Client struct {
	compute *gophercloud.ServiceClient
	volume  *gophercloud.ServiceClient

	pollInterval time.Duration
	waitTimeout  time.Duration

	passMutex sync.Mutex
	passwords map[string]string
}

// New authenticates against the identity service named by the
// ENDPOINT/OS_USERNAME/OS_PASSWORD/TENANT_NAME config keys and builds
// service clients for the configured region. Authentication is retried
// with exponential backoff; keystone is often the flakiest part of a
// deployment.
func New(ctx gocontext.Context, cfg *config.ProviderConfig) (*Client, error) {
	logger := context.LoggerFromContext(ctx).WithField("self", "compute")

	opts, err := authOptions(cfg)
	if err != nil {
		return nil, err
	}

	region := "RegionOne"
	if cfg.IsSet("OS_REGION") {
		region = cfg.Get("OS_REGION")
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = time.Minute

	var provider *gophercloud.ProviderClient
	err = backoff.Retry(func() error {
		var authErr error
		provider, authErr = openstack.AuthenticatedClient(opts)
		if authErr != nil {
			logger.WithField("err", authErr).Warn("authentication failed, retrying")
		}
		return authErr
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't authenticate against the identity service")
	}

	computeClient, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't locate the compute service")
	}

	volumeClient, err := openstack.NewBlockStorageV2(provider, gophercloud.EndpointOpts{
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't locate the block storage service")
	}

	c := &Client{
		compute:      computeClient,
		volume:       volumeClient,
		pollInterval: 1 * time.Second,
		waitTimeout:  300 * time.Second,
		passwords:    map[string]string{},
	}

	if cfg.IsSet("POLL_INTERVAL") {
		d, err := time.ParseDuration(cfg.Get("POLL_INTERVAL"))
		if err != nil {
			return nil, errors.Wrap(err, "error parsing poll interval duration")
		}
		c.pollInterval = d
	}

	if cfg.IsSet("WAIT_TIMEOUT") {
		d, err := time.ParseDuration(cfg.Get("WAIT_TIMEOUT"))
		if err != nil {
			return nil, errors.Wrap(err, "error parsing wait timeout duration")
		}
		c.waitTimeout = d
	}

	return c, nil
}

func authOptions(cfg *config.ProviderConfig) (gophercloud.AuthOptions, error) {
	for _, key := range []string{"ENDPOINT", "OS_USERNAME", "OS_PASSWORD", "TENANT_NAME"} {
		if !cfg.IsSet(key) {
			return gophercloud.AuthOptions{}, fmt.Errorf("missing %s", key)
		}
	}

	opts := gophercloud.AuthOptions{
		IdentityEndpoint: cfg.Get("ENDPOINT"),
		Username:         cfg.Get("OS_USERNAME"),
		Password:         cfg.Get("OS_PASSWORD"),
		TenantName:       cfg.Get("TENANT_NAME"),
		AllowReauth:      true,
	}

	endpointSplit := strings.Split(strings.TrimRight(cfg.Get("ENDPOINT"), "/"), "/")
	keystoneAPIVersion := endpointSplit[len(endpointSplit)-1]

	switch keystoneAPIVersion {
	case "v2.0":
	case "v3":
		opts.DomainName = cfg.Get("OS_DOMAIN")
	default:
		return gophercloud.AuthOptions{}, fmt.Errorf("unsupported identity API version %q", keystoneAPIVersion)
	}

	return opts, nil
}

func (c *Client) rememberPassword(serverID, password string) {
	if password == "" {
		return
	}
	c.passMutex.Lock()
	defer c.passMutex.Unlock()
	c.passwords[serverID] = password
}

func (c *Client) passwordFor(serverID string) string {
	c.passMutex.Lock()
	defer c.passMutex.Unlock()
	return c.passwords[serverID]
}

func (c *Client) interval() time.Duration {
	if c.pollInterval > 0 {
		return c.pollInterval
	}
	return 1 * time.Second
}

func (c *Client) timeoutOr(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if c.waitTimeout > 0 {
		return c.waitTimeout
	}
	return 300 * time.Second
}
