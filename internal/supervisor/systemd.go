package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/steward-sh/steward/internal/fileutil"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
	"github.com/steward-sh/steward/internal/services"
)

// Systemd supervises the stack with first-class init units: one unit per
// service with explicit ordering on its upstream services and on the
// database and cache daemons, restart-always with a fixed delay, and
// logs in the journal.
type Systemd struct {
	run   runner.Runner
	log   *logging.Logger
	paths Paths
}

// NewSystemd creates the systemd backend.
func NewSystemd(r runner.Runner, log *logging.Logger, paths Paths) *Systemd {
	return &Systemd{run: r, log: log, paths: paths}
}

func (s *Systemd) Kind() Kind { return KindSystemd }

func unitName(service string) string {
	return "steward-" + service + ".service"
}

// Unit renders the systemd unit for one process.
func Unit(pr Process) string {
	after := []string{"network.target", "postgresql.service", "redis-server.service"}
	for _, dep := range pr.After {
		after = append(after, unitName(dep))
	}
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=steward %s service\n", pr.Name)
	fmt.Fprintf(&b, "After=%s\n", strings.Join(after, " "))
	b.WriteString("Requires=postgresql.service\n")
	b.WriteString("\n[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "WorkingDirectory=%s\n", pr.Dir)
	fmt.Fprintf(&b, "EnvironmentFile=%s\n", pr.EnvFile)
	fmt.Fprintf(&b, "ExecStart=/usr/bin/node %s\n", filepath.Join(pr.Dir, pr.Entry))
	b.WriteString("Restart=always\n")
	b.WriteString("RestartSec=5\n")
	fmt.Fprintf(&b, "MemoryMax=%s\n", pr.MemoryMax)
	b.WriteString("StandardOutput=journal\n")
	b.WriteString("StandardError=journal\n")
	b.WriteString("\n[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}

func (s *Systemd) Start(ctx context.Context, m Manifest) error {
	for _, pr := range m.Processes {
		path := filepath.Join(s.paths.UnitDir, unitName(pr.Name))
		if err := fileutil.WriteAtomic(path, []byte(Unit(pr)), 0644); err != nil {
			return fmt.Errorf("write unit for %s: %w", pr.Name, err)
		}
	}
	if err := s.removeRivalManifest(ctx, m); err != nil {
		return err
	}
	if err := s.run.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	for _, pr := range m.Processes {
		s.log.Info("starting service unit", "unit", unitName(pr.Name))
		if err := s.run.Run(ctx, "systemctl", "start", unitName(pr.Name)); err != nil {
			return fmt.Errorf("start %s: %w", unitName(pr.Name), err)
		}
	}
	return nil
}

func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.run.Run(ctx, "systemctl", "restart", unitName(name))
}

func (s *Systemd) Status(ctx context.Context, name string) (string, error) {
	return s.run.Output(ctx, "systemctl", "status", "--no-pager", unitName(name))
}

func (s *Systemd) TailLogs(ctx context.Context, name string, lines int) (string, error) {
	return s.run.Output(ctx, "journalctl", "-u", unitName(name), "-n", strconv.Itoa(lines), "--no-pager")
}

func (s *Systemd) EnableAtBoot(ctx context.Context) error {
	for _, svc := range services.Names() {
		if err := s.run.Run(ctx, "systemctl", "enable", unitName(svc)); err != nil {
			return fmt.Errorf("enable %s: %w", unitName(svc), err)
		}
	}
	return nil
}

// removeRivalManifest deletes a pm2 ecosystem file from an earlier
// pm2-supervised deployment and stops its daemon, keeping the two
// manifest kinds exclusive.
func (s *Systemd) removeRivalManifest(ctx context.Context, m Manifest) error {
	if _, err := os.Stat(s.paths.EcosystemFile); err != nil {
		return nil
	}
	s.log.Info("removing stale pm2 manifest", "path", s.paths.EcosystemFile)
	for _, pr := range m.Processes {
		_ = s.run.Run(ctx, "pm2", "delete", pr.Name)
	}
	if err := os.Remove(s.paths.EcosystemFile); err != nil {
		return fmt.Errorf("remove stale pm2 manifest: %w", err)
	}
	return nil
}
