// Package router provides the default virtual-host/path router
// implementation satisfying pow.Router.
package router

import (
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"proxy-pow-filter/internal/pow"
)

// RouteConfig is one virtual host's route entry, as parsed from YAML.
type RouteConfig struct {
	Path            string
	RequestsPerUnit uint64
	Unit            time.Duration
}

// VirtualHostConfig groups routes under one authority.
type VirtualHostConfig struct {
	Authority string
	Routes    []RouteConfig
}

type route struct {
	pattern string
	match   pow.RouteMatch
}

type virtualHost struct {
	authority string
	routes    []route // sorted by descending pattern length: longest-prefix-first
}

// Router matches (:authority, :path) pairs against configured routes
// using an exact authority match and a longest-path-prefix match within
// it.
type Router struct {
	hosts map[string]*virtualHost
}

// Build constructs a Router from parsed configuration. Routes within a
// host are sorted so the longest (most specific) pattern is tried first.
func Build(vhosts []VirtualHostConfig) *Router {
	r := &Router{hosts: make(map[string]*virtualHost, len(vhosts))}
	for _, vh := range vhosts {
		host := &virtualHost{authority: vh.Authority}
		for _, rc := range vh.Routes {
			host.routes = append(host.routes, route{
				pattern: rc.Path,
				match: pow.RouteMatch{
					Pattern:         rc.Path,
					RequestsPerUnit: rc.RequestsPerUnit,
					Unit:            rc.Unit,
				},
			})
		}
		slices.SortFunc(host.routes, func(a, b route) int {
			return len(b.pattern) - len(a.pattern)
		})
		r.hosts[vh.Authority] = host
	}
	return r
}

// Matches implements pow.Router: exact authority match, then the
// longest configured path prefix that the request path starts with.
func (r *Router) Matches(host, path string) (pow.RouteMatch, bool) {
	vh, ok := r.hosts[host]
	if !ok {
		return pow.RouteMatch{}, false
	}
	// routes are sorted longest-pattern-first, so the first prefix match
	// found is the most specific one.
	for _, rt := range vh.routes {
		if strings.HasPrefix(path, rt.pattern) {
			return rt.match, true
		}
	}
	return pow.RouteMatch{}, false
}
