package config

import (
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig holds the string-keyed configuration for talking to the
// compute provider. Keys are upper-case with underscores, e.g. "ENDPOINT",
// "OS_USERNAME".
type ProviderConfig struct {
	sync.Mutex

	cfgMap map[string]string
}

func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{cfgMap: map[string]string{}}
}

func (pc *ProviderConfig) Map(f func(string, string)) {
	keys := []string{}
	for key := range pc.cfgMap {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		f(key, pc.Get(key))
	}
}

func (pc *ProviderConfig) Get(key string) string {
	pc.Lock()
	defer pc.Unlock()

	if value, ok := pc.cfgMap[key]; ok {
		return value
	}

	return ""
}

func (pc *ProviderConfig) Set(key, value string) {
	pc.Lock()
	defer pc.Unlock()

	pc.cfgMap[key] = value
}

func (pc *ProviderConfig) IsSet(key string) bool {
	pc.Lock()
	defer pc.Unlock()

	_, ok := pc.cfgMap[key]
	return ok
}

// ProviderConfigFromEnviron dynamically builds a *ProviderConfig from the
// environment by loading values from keys with the "NOVA_" or
// "NOVACTL_NOVA_" prefixes, e.g.:
//
//	env: NOVACTL_NOVA_ENDPOINT=https://keystone.example.org:5000/v3 NOVA_OS_REGION=ORD
//	map equiv: {"ENDPOINT": "https://keystone.example.org:5000/v3", "OS_REGION": "ORD"}
func ProviderConfigFromEnviron() *ProviderConfig {
	pc := NewProviderConfig()

	for _, prefix := range []string{
		"NOVA_",
		"NOVACTL_NOVA_",
	} {
		for _, e := range os.Environ() {
			if strings.HasPrefix(e, prefix) {
				pair := strings.SplitN(e, "=", 2)

				key := strings.TrimPrefix(pair[0], prefix)
				value := pair[1]
				unescapedValue, err := url.QueryUnescape(value)
				if err == nil {
					value = unescapedValue
				}

				pc.Set(key, value)
			}
		}
	}

	return pc
}
