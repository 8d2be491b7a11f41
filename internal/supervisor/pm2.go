package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/steward-sh/steward/internal/fileutil"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
)

// PM2 supervises the stack with a user-space parent process: pm2 owns the
// service children, restarts them on crash, restarts on memory-ceiling
// breach, and multiplexes stdout/stderr to per-service log files.
type PM2 struct {
	run   runner.Runner
	log   *logging.Logger
	paths Paths
}

// NewPM2 creates the pm2 backend.
func NewPM2(r runner.Runner, log *logging.Logger, paths Paths) *PM2 {
	return &PM2{run: r, log: log, paths: paths}
}

func (p *PM2) Kind() Kind { return KindPM2 }

// pm2App mirrors one entry of the ecosystem file's "apps" array.
type pm2App struct {
	Name             string `json:"name"`
	Script           string `json:"script"`
	Cwd              string `json:"cwd"`
	Autorestart      bool   `json:"autorestart"`
	MaxMemoryRestart string `json:"max_memory_restart"`
	OutFile          string `json:"out_file"`
	ErrorFile        string `json:"error_file"`
	MergeLogs        bool   `json:"merge_logs"`
}

type pm2Ecosystem struct {
	Apps []pm2App `json:"apps"`
}

// Ecosystem renders the pm2 manifest. Process order in the file follows
// the catalog; pm2 starts apps in file order.
func Ecosystem(m Manifest) ([]byte, error) {
	eco := pm2Ecosystem{}
	for _, pr := range m.Processes {
		eco.Apps = append(eco.Apps, pm2App{
			Name:             pr.Name,
			Script:           filepath.Join(pr.Dir, pr.Entry),
			Cwd:              pr.Dir,
			Autorestart:      true,
			MaxMemoryRestart: pr.MemoryMax,
			OutFile:          pr.OutLog,
			ErrorFile:        pr.ErrLog,
			MergeLogs:        true,
		})
	}
	return json.MarshalIndent(eco, "", "  ")
}

func (p *PM2) Start(ctx context.Context, m Manifest) error {
	data, err := Ecosystem(m)
	if err != nil {
		return fmt.Errorf("render ecosystem manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.paths.EcosystemFile), 0755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	if err := fileutil.WriteAtomic(p.paths.EcosystemFile, data, 0644); err != nil {
		return fmt.Errorf("write ecosystem manifest: %w", err)
	}
	if err := removeRivalUnits(ctx, p.run, p.log, p.paths.UnitDir, m); err != nil {
		return err
	}
	p.log.Info("starting services under pm2", "manifest", p.paths.EcosystemFile)
	if err := p.run.Run(ctx, "pm2", "start", p.paths.EcosystemFile); err != nil {
		return fmt.Errorf("pm2 start: %w", err)
	}
	return nil
}

func (p *PM2) Restart(ctx context.Context, name string) error {
	return p.run.Run(ctx, "pm2", "restart", name)
}

func (p *PM2) Status(ctx context.Context, name string) (string, error) {
	return p.run.Output(ctx, "pm2", "describe", name)
}

func (p *PM2) TailLogs(ctx context.Context, name string, lines int) (string, error) {
	return p.run.Output(ctx, "pm2", "logs", name, "--lines", strconv.Itoa(lines), "--nostream")
}

func (p *PM2) EnableAtBoot(ctx context.Context) error {
	if err := p.run.Run(ctx, "pm2", "startup", "systemd", "-u", "root", "--hp", "/root"); err != nil {
		return fmt.Errorf("pm2 startup: %w", err)
	}
	if err := p.run.Run(ctx, "pm2", "save"); err != nil {
		return fmt.Errorf("pm2 save: %w", err)
	}
	return nil
}

// removeRivalUnits deletes any systemd units left behind by a previous
// systemd-supervised deployment, keeping the two manifest kinds exclusive.
func removeRivalUnits(ctx context.Context, run runner.Runner, log *logging.Logger, unitDir string, m Manifest) error {
	removed := false
	for _, pr := range m.Processes {
		unit := filepath.Join(unitDir, unitName(pr.Name))
		if _, err := os.Stat(unit); err != nil {
			continue
		}
		log.Info("removing stale systemd unit", "unit", unit)
		_ = run.Run(ctx, "systemctl", "disable", "--now", unitName(pr.Name))
		if err := os.Remove(unit); err != nil {
			return fmt.Errorf("remove stale unit %s: %w", unit, err)
		}
		removed = true
	}
	if removed {
		if err := run.Run(ctx, "systemctl", "daemon-reload"); err != nil {
			return fmt.Errorf("daemon-reload after unit removal: %w", err)
		}
	}
	return nil
}
