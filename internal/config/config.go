// Package config parses the per-node YAML configuration file (spec §6.5):
// this node's own settings, the full server list, and the striping policy
// used to route a container id to its owning node.
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v2"
)

// ServerEntry names one storage node in the cluster's server list (spec
// §6.5 "server list {server-number -> (hostname, port)}").
type ServerEntry struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
}

// Config is the fully parsed node configuration (spec §6.5).
type Config struct {
	Hostname    string `yaml:"hostname"`
	Port        int    `yaml:"port"`
	LogFilePath string `yaml:"log_file_path"`
	StoreDir    string `yaml:"store_dir"`

	Servers      map[int]ServerEntry `yaml:"servers"`
	Nservers     int                 `yaml:"nservers"`
	StripeMethod string              `yaml:"stripe_method"`
	StripeParm   int                 `yaml:"stripe_parm"`

	PreferredIP     string `yaml:"preferred_ip"`
	PreferredIPMask string `yaml:"preferred_ip_mask"`
}

// Load reads and validates the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.StoreDir == "" {
		return fmt.Errorf("store_dir is required")
	}
	if c.Nservers > 0 && len(c.Servers) != c.Nservers {
		return fmt.Errorf("nservers=%d but server list has %d entries", c.Nservers, len(c.Servers))
	}
	if c.PreferredIPMask != "" {
		if net.ParseIP(c.PreferredIP) == nil {
			return fmt.Errorf("preferred_ip %q is not a valid IP", c.PreferredIP)
		}
	}
	return nil
}

// Addr returns this node's own listen address ("hostname:port").
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

// ServerAddr returns the listen address of server number n, per the
// cluster's server list.
func (c *Config) ServerAddr(n int) (string, error) {
	e, ok := c.Servers[n]
	if !ok {
		return "", fmt.Errorf("config: no server numbered %d", n)
	}
	return fmt.Sprintf("%s:%d", e.Hostname, e.Port), nil
}

// StripeServer maps a container id to the server number that owns it,
// according to StripeMethod (spec §6.5). "hash" (the default), "mod" and
// "range" (cid / StripeParm, then mod Nservers) are supported; any other
// value is treated as "mod" against Nservers.
func (c *Config) StripeServer(cid uint64) int {
	if c.Nservers <= 0 {
		return 0
	}
	switch c.StripeMethod {
	case "range":
		parm := uint64(c.StripeParm)
		if parm == 0 {
			parm = 1
		}
		return int((cid / parm) % uint64(c.Nservers))
	default: // "hash", "mod", or unset
		return int(cid % uint64(c.Nservers))
	}
}
