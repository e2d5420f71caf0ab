// Package config handles the configuration for talking to the compute
// provider, sourced from CLI flags or the environment.
package config

import (
	"fmt"
	"time"

	"gopkg.in/urfave/cli.v1"
)

const (
	defaultDomain       = "Default"
	defaultRegion       = "RegionOne"
	defaultPollInterval = 1 * time.Second
	defaultWaitTimeout  = 300 * time.Second
)

var (
	// Flags is the list of global CLI flags.
	Flags = []cli.Flag{
		cli.StringFlag{Name: "endpoint", Usage: "keystone identity endpoint, including the version path (v2.0 or v3)", EnvVar: ncEnvVars("ENDPOINT")},
		cli.StringFlag{Name: "username", Usage: "user name", EnvVar: ncEnvVars("OS_USERNAME")},
		cli.StringFlag{Name: "password", Usage: "user password", EnvVar: ncEnvVars("OS_PASSWORD")},
		cli.StringFlag{Name: "tenant-name", Usage: "tenant (project) name", EnvVar: ncEnvVars("TENANT_NAME")},
		cli.StringFlag{Name: "domain", Value: defaultDomain, Usage: "domain name, used only with the v3 identity API", EnvVar: ncEnvVars("OS_DOMAIN")},
		cli.StringFlag{Name: "region", Value: defaultRegion, EnvVar: ncEnvVars("OS_REGION")},
		cli.DurationFlag{Name: "poll-interval", Value: defaultPollInterval, Usage: "sleep between status checks while waiting for an operation", EnvVar: ncEnvVars("POLL_INTERVAL")},
		cli.DurationFlag{Name: "wait-timeout", Value: defaultWaitTimeout, Usage: "how long to wait for boot/attach/detach before giving up", EnvVar: ncEnvVars("WAIT_TIMEOUT")},

		cli.StringFlag{Name: "librato-email", EnvVar: ncEnvVars("LIBRATO_EMAIL")},
		cli.StringFlag{Name: "librato-token", EnvVar: ncEnvVars("LIBRATO_TOKEN")},
		cli.StringFlag{Name: "librato-source", EnvVar: ncEnvVars("LIBRATO_SOURCE")},
		cli.StringFlag{Name: "sentry-dsn", EnvVar: ncEnvVars("SENTRY_DSN")},

		cli.BoolFlag{Name: "silence-metrics", Usage: "skip the fallback stderr metrics reporter", EnvVar: ncEnvVars("SILENCE_METRICS")},
		cli.BoolFlag{Name: "debug", Usage: "set log level to debug", EnvVar: ncEnvVars("DEBUG")},
	}
)

func ncEnvVars(key string) string {
	return fmt.Sprintf("NOVACTL_%s,NOVA_%s", key, key)
}

// FromCLIContext folds the global flags into a *ProviderConfig, on top of
// anything already present in the environment.
func FromCLIContext(c *cli.Context) *ProviderConfig {
	pc := ProviderConfigFromEnviron()

	for flagName, key := range map[string]string{
		"endpoint":       "ENDPOINT",
		"username":       "OS_USERNAME",
		"password":       "OS_PASSWORD",
		"tenant-name":    "TENANT_NAME",
		"domain":         "OS_DOMAIN",
		"region":         "OS_REGION",
		"librato-email":  "LIBRATO_EMAIL",
		"librato-token":  "LIBRATO_TOKEN",
		"librato-source": "LIBRATO_SOURCE",
		"sentry-dsn":     "SENTRY_DSN",
	} {
		if v := c.GlobalString(flagName); v != "" {
			pc.Set(key, v)
		}
	}

	for flagName, key := range map[string]string{
		"poll-interval": "POLL_INTERVAL",
		"wait-timeout":  "WAIT_TIMEOUT",
	} {
		if d := c.GlobalDuration(flagName); d != 0 {
			pc.Set(key, d.String())
		}
	}

	return pc
}
