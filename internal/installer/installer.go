package installer

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
)

// Step is one check-then-install dependency. Running a step twice never
// reinstalls, never restarts a healthy daemon, and never fails because the
// dependency already exists.
type Step struct {
	Name string
	// Present reports whether the dependency is already installed.
	Present func(ctx context.Context) (bool, error)
	// Install puts the dependency on the host.
	Install func(ctx context.Context) error
	// Daemon is the systemd unit to enable and start, empty for tools.
	Daemon string
}

// Installer converges host dependencies.
type Installer struct {
	run runner.Runner
	log *logging.Logger
}

// New creates an installer.
func New(run runner.Runner, log *logging.Logger) *Installer {
	return &Installer{run: run, log: log}
}

func (i *Installer) aptStep(pkg, daemon string) Step {
	return Step{
		Name: pkg,
		Present: func(ctx context.Context) (bool, error) {
			err := i.run.Run(ctx, "dpkg", "-s", pkg)
			return err == nil, nil
		},
		Install: func(ctx context.Context) error {
			return i.run.Run(ctx, "apt-get", "install", "-y", "-qq", pkg)
		},
		Daemon: daemon,
	}
}

// Steps returns the dependency list for the chosen supervisor strategy.
// Independent dependencies may install in any order; the returned order
// is stable for reproducible logs.
func (i *Installer) Steps(supervisorKind string) []Step {
	steps := []Step{
		i.aptStep("nodejs", ""),
		i.aptStep("postgresql", "postgresql"),
		i.aptStep("redis-server", "redis-server"),
		i.aptStep("nginx", "nginx"),
		i.aptStep("certbot", ""),
		i.aptStep("ufw", ""),
	}
	if supervisorKind == config.SupervisorPM2 {
		steps = append(steps, Step{
			Name: "pm2",
			Present: func(ctx context.Context) (bool, error) {
				return i.run.LookPath("pm2"), nil
			},
			Install: func(ctx context.Context) error {
				return i.run.Run(ctx, "npm", "install", "-g", "pm2")
			},
		})
	}
	return steps
}

// Run converges every step: present dependencies are skipped with a
// notice, missing ones installed, daemons enabled at boot and started
// only when not already running.
func (i *Installer) Run(ctx context.Context, steps []Step) error {
	for _, s := range steps {
		present, err := s.Present(ctx)
		if err != nil {
			return fmt.Errorf("check %s: %w", s.Name, err)
		}
		if present {
			i.log.Info("dependency already installed, skipping", "dependency", s.Name)
		} else {
			i.log.Info("installing dependency", "dependency", s.Name)
			if err := s.Install(ctx); err != nil {
				return fmt.Errorf("install %s: %w", s.Name, err)
			}
		}
		if s.Daemon != "" {
			if err := i.ensureDaemon(ctx, s.Daemon); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureDaemon enables the unit at boot and starts it only if inactive,
// so a healthy daemon is never restarted.
func (i *Installer) ensureDaemon(ctx context.Context, unit string) error {
	if err := i.run.Run(ctx, "systemctl", "enable", unit); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	out, _ := i.run.Output(ctx, "systemctl", "is-active", unit)
	if strings.TrimSpace(out) == "active" {
		i.log.Info("daemon already running", "unit", unit)
		return nil
	}
	if err := i.run.Run(ctx, "systemctl", "start", unit); err != nil {
		return fmt.Errorf("start %s: %w", unit, err)
	}
	return nil
}
