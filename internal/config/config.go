// Package config parses the plugin's YAML configuration blob and builds
// the Router/Whitelist the validator consults at request time.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"proxy-pow-filter/internal/hostabi"
	"proxy-pow-filter/internal/router"
)

// Duration unmarshals a YAML scalar like "60s" into a time.Duration,
// since yaml.v3 doesn't do this natively.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// RouteYAML is one route entry under a virtual host.
type RouteYAML struct {
	Path            string   `yaml:"path"`
	RequestsPerUnit uint64   `yaml:"requests_per_unit"`
	Unit            Duration `yaml:"unit"`
}

// VirtualHostYAML groups routes under one authority.
type VirtualHostYAML struct {
	Authority string      `yaml:"authority"`
	Routes    []RouteYAML `yaml:"routes"`
}

// Raw is the YAML document shape, parsed directly by yaml.v3.
type Raw struct {
	LogLevel            string            `yaml:"log_level"`
	Whitelist           []string          `yaml:"whitelist"`
	Difficulty          uint64            `yaml:"difficulty"`
	MempoolUpstreamName string            `yaml:"mempool_upstream_name"`
	ChainRingCapacity   int               `yaml:"chain_ring_capacity"`
	ChainPollInterval   Duration          `yaml:"chain_poll_interval"`
	ChainPollPath       string            `yaml:"chain_poll_path"`
	VirtualHosts        []VirtualHostYAML `yaml:"virtual_hosts"`
}

// Config is the validated, built configuration: everything the Plugin
// needs, with the external collaborators (Router, Whitelist) already
// constructed.
type Config struct {
	LogLevel            hostabi.LogLevel
	Whitelist           *router.Whitelist
	Router              *router.Router
	Difficulty          uint64
	MempoolUpstreamName string
	ChainRingCapacity   int
	ChainPollInterval   time.Duration
	ChainPollPath       string
}

// Parse decodes and validates a configuration blob. A non-nil error
// means on_configure must return false; the core never partially
// applies a bad configuration.
func Parse(raw []byte) (*Config, error) {
	var doc Raw
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	level, known := hostabi.ParseLogLevel(doc.LogLevel)
	if !known {
		return nil, fmt.Errorf("config: unknown log_level %q", doc.LogLevel)
	}

	if doc.Difficulty == 0 {
		return nil, fmt.Errorf("config: difficulty must be a positive integer")
	}
	if doc.MempoolUpstreamName == "" {
		return nil, fmt.Errorf("config: mempool_upstream_name is required")
	}

	ringCapacity := doc.ChainRingCapacity
	if ringCapacity <= 0 {
		ringCapacity = 16
	}
	pollInterval := time.Duration(doc.ChainPollInterval)
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	pollPath := doc.ChainPollPath
	if pollPath == "" {
		pollPath = "/api/v1/blocks/tip/hash"
	}

	vhosts := make([]router.VirtualHostConfig, 0, len(doc.VirtualHosts))
	for _, vh := range doc.VirtualHosts {
		routes := make([]router.RouteConfig, 0, len(vh.Routes))
		for _, rt := range vh.Routes {
			unit := time.Duration(rt.Unit)
			if unit <= 0 {
				unit = time.Second
			}
			if rt.RequestsPerUnit == 0 {
				return nil, fmt.Errorf("config: route %q: requests_per_unit must be positive", rt.Path)
			}
			routes = append(routes, router.RouteConfig{
				Path:            rt.Path,
				RequestsPerUnit: rt.RequestsPerUnit,
				Unit:            unit,
			})
		}
		vhosts = append(vhosts, router.VirtualHostConfig{Authority: vh.Authority, Routes: routes})
	}

	return &Config{
		LogLevel:            level,
		Whitelist:           router.BuildWhitelist(doc.Whitelist),
		Router:              router.Build(vhosts),
		Difficulty:          doc.Difficulty,
		MempoolUpstreamName: doc.MempoolUpstreamName,
		ChainRingCapacity:   ringCapacity,
		ChainPollInterval:   pollInterval,
		ChainPollPath:       pollPath,
	}, nil
}
