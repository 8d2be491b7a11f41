package supervisor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
	"github.com/steward-sh/steward/internal/services"
)

// Kind selects the supervisor backend. Selection happens once, before
// manifest generation, and is final for the deployment: the two kinds
// never coexist on the same host.
type Kind string

const (
	KindPM2     Kind = config.SupervisorPM2
	KindSystemd Kind = config.SupervisorSystemd
)

// ParseKind validates a supervisor selector string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPM2, KindSystemd:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown supervisor kind %q (must be %s or %s)", s, KindPM2, KindSystemd)
	}
}

// Process is one supervised service in the manifest.
type Process struct {
	Name string
	Dir  string
	// Entry is the script path relative to Dir.
	Entry string
	// EnvFile is the rendered configuration artifact for the service.
	EnvFile string
	// MemoryMax is the ceiling that triggers a restart on breach, in the
	// "512M"/"1G" notation both backends accept.
	MemoryMax string
	// After lists services that must be ordered before this one.
	After  []string
	OutLog string
	ErrLog string
}

// Manifest is the ordered set of processes handed to one backend.
// Exactly one manifest kind exists per deployment.
type Manifest struct {
	Processes []Process
}

// Supervisor is the lifecycle contract shared by both backends.
// Start returning nil means the supervisor accepted the manifest, not that
// the services are healthy; no readiness probing is performed.
type Supervisor interface {
	Kind() Kind
	// Start writes the manifest, removes any manifest of the rival kind,
	// and launches every process in order.
	Start(ctx context.Context, m Manifest) error
	Restart(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (string, error)
	TailLogs(ctx context.Context, name string, lines int) (string, error)
	EnableAtBoot(ctx context.Context) error
}

// Paths locates both manifest kinds on the host, so each backend can
// remove the other's leftovers. Overridable in tests.
type Paths struct {
	// EcosystemFile is the pm2 manifest location.
	EcosystemFile string
	// UnitDir holds the generated systemd units.
	UnitDir string
}

// DefaultPaths returns the production manifest locations.
func DefaultPaths() Paths {
	return Paths{
		EcosystemFile: "/etc/steward/ecosystem.config.json",
		UnitDir:       "/etc/systemd/system",
	}
}

// New constructs the backend for kind. The choice is final: callers must
// not construct a second supervisor of a different kind for the same host.
func New(kind Kind, r runner.Runner, log *logging.Logger, paths Paths) (Supervisor, error) {
	switch kind {
	case KindPM2:
		return NewPM2(r, log, paths), nil
	case KindSystemd:
		return NewSystemd(r, log, paths), nil
	default:
		return nil, fmt.Errorf("unknown supervisor kind %q", kind)
	}
}

// BuildManifest derives the process manifest from the service catalog and
// the deployment config. Both backends consume this single source of truth.
func BuildManifest(cfg *config.DeploymentConfig) Manifest {
	var m Manifest
	for _, d := range services.Catalog() {
		mem := "512M"
		if d.Name == services.DataServer {
			mem = "1G"
		}
		m.Processes = append(m.Processes, Process{
			Name:      d.Name,
			Dir:       d.Dir,
			Entry:     d.Entry,
			EnvFile:   filepath.Join(d.Dir, ".env"),
			MemoryMax: mem,
			After:     append([]string(nil), d.DependsOn...),
			OutLog:    filepath.Join(cfg.LogDir, d.Name+".out.log"),
			ErrLog:    filepath.Join(cfg.LogDir, d.Name+".err.log"),
		})
	}
	return m
}
