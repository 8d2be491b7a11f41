package proxy

import (
	"sort"
	"strings"

	"github.com/steward-sh/steward/internal/services"
)

// Route maps a public path prefix to a local upstream port.
type Route struct {
	Prefix string
	Port   int
}

// Routes returns the fixed routing table, most specific prefix first.
// /api/social is a sub-range of /api and must out-rank it; emitting the
// table longest-prefix-first keeps match precedence stable however the
// proxy evaluates it. Ports come from the service catalog, never repeated
// here, so routes can never disagree with the artifacts.
func Routes() []Route {
	port := func(name string) int {
		d, _ := services.Lookup(name)
		return d.Port
	}
	routes := []Route{
		{Prefix: "/api/social", Port: port(services.AppView)},
		{Prefix: "/api", Port: port(services.DataServer)},
		{Prefix: "/mod", Port: port(services.ModView)},
		{Prefix: "/sync", Port: port(services.SyncD)},
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	return routes
}

// Match returns the route serving path, applying longest-prefix precedence.
func Match(path string) (Route, bool) {
	for _, r := range Routes() {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Route{}, false
}
