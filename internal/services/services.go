package services

import "path/filepath"

// Definition describes one service of the deployed stack. The catalog below
// is the single source of truth for names, ports, and startup ordering:
// the emitter, both supervisor backends, and the proxy routes all read it.
type Definition struct {
	Name string
	// Dir is the service working directory on the host.
	Dir string
	// Entry is the script started by the supervisor, relative to Dir.
	Entry string
	// Port is the fixed local port the service listens on.
	Port int
	// DependsOn lists services that must already be reachable at startup.
	DependsOn []string
	// Database is the dedicated relational database name, empty if none.
	Database string
}

// BaseDir is where service working directories live. A variable so tests
// can point the catalog at a scratch directory.
var BaseDir = "/opt/steward"

// Service names.
const (
	DataServer = "pds"
	AppView    = "appview"
	ModView    = "modview"
	SyncD      = "syncd"
)

// Catalog returns the fixed four-service catalog in startup order.
func Catalog() []Definition {
	return []Definition{
		{
			Name:     DataServer,
			Dir:      filepath.Join(BaseDir, DataServer),
			Entry:    "index.js",
			Port:     2583,
			Database: "pds",
		},
		{
			Name:      AppView,
			Dir:       filepath.Join(BaseDir, AppView),
			Entry:     "index.js",
			Port:      3000,
			DependsOn: []string{DataServer},
			Database:  "appview",
		},
		{
			Name:      ModView,
			Dir:       filepath.Join(BaseDir, ModView),
			Entry:     "index.js",
			Port:      3001,
			DependsOn: []string{DataServer, AppView},
			Database:  "modview",
		},
		{
			Name:      SyncD,
			Dir:       filepath.Join(BaseDir, SyncD),
			Entry:     "index.js",
			Port:      3002,
			DependsOn: []string{DataServer},
			Database:  "syncd",
		},
	}
}

// Lookup returns the definition for name, or false if unknown.
func Lookup(name string) (Definition, bool) {
	for _, d := range Catalog() {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Names returns the catalog service names in startup order.
func Names() []string {
	defs := Catalog()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
