package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steward-sh/steward/internal/backup"
	"github.com/steward-sh/steward/internal/clock"
	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/emitter"
	"github.com/steward-sh/steward/internal/firewall"
	"github.com/steward-sh/steward/internal/installer"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/metrics"
	"github.com/steward-sh/steward/internal/proxy"
	"github.com/steward-sh/steward/internal/runner"
	"github.com/steward-sh/steward/internal/services"
	"github.com/steward-sh/steward/internal/state"
	"github.com/steward-sh/steward/internal/supervisor"
)

// BackupSchedule and RenewSchedule are the recurring triggers the driver
// registers. Backups run nightly, renewal twice a day per issuer guidance.
const (
	BackupSchedule = "30 3 * * *"
	RenewSchedule  = "0 */12 * * *"
	cronTablePath  = "/etc/cron.d/steward"
)

// Dependencies wires the driver. Everything is injectable for tests.
type Dependencies struct {
	Run        runner.Runner
	Log        *logging.Logger
	Store      *state.Store
	Clock      clock.Clock
	SupPaths   supervisor.Paths
	ProxyPaths proxy.Paths
	CronPath   string
	// Euid overrides the effective-uid probe in tests.
	Euid func() int
}

// Driver sequences every provisioning component in fixed dependency
// order. It is single-threaded and strictly sequential: later steps
// assume the side effects of earlier ones. Any fatal error halts the
// remaining steps; nothing is rolled back — every step is idempotent and
// the recovery procedure is to run the driver again.
type Driver struct {
	cfg  *config.DeploymentConfig
	deps Dependencies
	sup  supervisor.Supervisor
	prox *proxy.Configurator
	fw   *firewall.Configurator
	inst *installer.Installer
	reg  *backup.Registrar
}

// Report summarizes a completed run.
type Report struct {
	Steps []string
	// CertError is a confined certificate failure: the domain stayed in
	// cert-pending and every later step still ran.
	CertError error
}

// NewDriver assembles a driver for the given deployment config.
func NewDriver(cfg *config.DeploymentConfig, deps Dependencies) (*Driver, error) {
	if deps.CronPath == "" {
		deps.CronPath = cronTablePath
	}
	if deps.Euid == nil {
		deps.Euid = os.Geteuid
	}
	kind, err := supervisor.ParseKind(cfg.SupervisorKind)
	if err != nil {
		return nil, err
	}
	sup, err := supervisor.New(kind, deps.Run, deps.Log, deps.SupPaths)
	if err != nil {
		return nil, err
	}
	return &Driver{
		cfg:  cfg,
		deps: deps,
		sup:  sup,
		prox: proxy.NewConfigurator(cfg.Domain, cfg.AdminEmail, deps.Run, deps.Log, deps.Store, deps.ProxyPaths),
		fw:   firewall.New(deps.Run, deps.Log),
		inst: installer.New(deps.Run, deps.Log),
		reg:  backup.NewRegistrar(deps.CronPath, deps.Log),
	}, nil
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Run executes the full provisioning sequence, fail-fast.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	var report Report
	started := d.deps.Clock.Now()
	log := d.deps.Log

	steps := []step{
		{"preflight", d.preflight},
		{"secrets", d.persistSecrets},
		{"dependencies", d.installDependencies},
		{"databases", d.provisionDatabases},
		{"directories", d.createDirectories},
		{"artifacts", d.renderArtifacts},
		{"proxy", d.configureProxy},
		{"firewall", d.configureFirewall},
		{"certificate", nil}, // handled inline: confined failure
		{"services", d.startServices},
		{"schedules", d.registerSchedules},
	}

	finish := func(failedStep string, runErr error) {
		rec := state.RunRecord{
			Started:  started,
			Finished: d.deps.Clock.Now(),
			Steps:    report.Steps,
		}
		if runErr != nil {
			rec.FailedStep = failedStep
			rec.Error = runErr.Error()
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			metrics.StepFailures.WithLabelValues(failedStep).Inc()
		} else {
			metrics.RunsTotal.WithLabelValues("success").Inc()
		}
		if report.CertError != nil {
			rec.CertError = report.CertError.Error()
		}
		metrics.LastRunTimestamp.Set(float64(rec.Finished.Unix()))
		if err := d.deps.Store.RecordRun(rec); err != nil {
			log.Error("failed to record run journal entry", "error", err)
		}
		if d.cfg.TextfilePath != "" {
			if err := metrics.WriteTextfile(d.cfg.TextfilePath); err != nil {
				log.Error("failed to write metrics textfile", "error", err)
			}
		}
	}

	for _, s := range steps {
		if s.name == "certificate" {
			if err := d.issueCertificate(ctx); err != nil {
				// Confined: stays in cert-pending, surfaced at the end.
				report.CertError = err
				metrics.CertIssuanceFailures.Inc()
				log.Error("certificate issuance failed; domain remains in cert-pending", "error", err)
				log.Info("re-run steward deploy after fixing DNS to retry issuance")
			} else {
				report.Steps = append(report.Steps, s.name)
			}
			continue
		}
		log.Info("running step", "step", s.name)
		if err := s.run(ctx); err != nil {
			finish(s.name, err)
			return report, fatal(s.name, err)
		}
		report.Steps = append(report.Steps, s.name)
	}

	finish("", nil)
	return report, nil
}

// preflight verifies privileges and required tooling before any mutation.
func (d *Driver) preflight(ctx context.Context) error {
	if d.deps.Euid() != 0 {
		return &PreconditionError{Reason: "must run as root"}
	}
	if !d.deps.Run.LookPath("apt-get") {
		return &PreconditionError{Reason: "apt-get not found; only Debian-family hosts are supported"}
	}
	if d.cfg.SupervisorKind == config.SupervisorSystemd && !d.deps.Run.LookPath("systemctl") {
		return &PreconditionError{Reason: "systemd supervisor selected but systemctl not found"}
	}
	return nil
}

func (d *Driver) persistSecrets(ctx context.Context) error {
	if err := d.cfg.WriteSecretsFile(); err != nil {
		return &ConfigurationRenderError{Err: err}
	}
	return nil
}

func (d *Driver) installDependencies(ctx context.Context) error {
	if err := d.inst.Run(ctx, d.inst.Steps(d.cfg.SupervisorKind)); err != nil {
		return &DependencyInstallError{Err: err}
	}
	return nil
}

// provisionDatabases runs strictly after the postgresql daemon was started
// by the dependency step.
func (d *Driver) provisionDatabases(ctx context.Context) error {
	if err := d.inst.EnsureDatabases(ctx, d.cfg.DBPassword); err != nil {
		return &DependencyInstallError{Err: err}
	}
	return nil
}

func (d *Driver) createDirectories(ctx context.Context) error {
	dirs := []string{d.cfg.LogDir, d.cfg.BackupDir}
	for _, svc := range services.Catalog() {
		dirs = append(dirs, svc.Dir, filepath.Join(svc.Dir, "data"))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (d *Driver) renderArtifacts(ctx context.Context) error {
	arts, err := emitter.Render(d.cfg)
	if err != nil {
		return &ConfigurationRenderError{Err: err}
	}
	if err := emitter.WriteAll(arts); err != nil {
		return &ConfigurationRenderError{Err: err}
	}
	return nil
}

func (d *Driver) configureProxy(ctx context.Context) error {
	return d.prox.BeginChallenge(ctx)
}

func (d *Driver) configureFirewall(ctx context.Context) error {
	return d.fw.Apply(ctx)
}

func (d *Driver) issueCertificate(ctx context.Context) error {
	st, err := d.prox.Current()
	if err != nil {
		return err
	}
	if st == proxy.Secured {
		return d.prox.Renew(ctx)
	}
	return d.prox.Issue(ctx)
}

func (d *Driver) startServices(ctx context.Context) error {
	manifest := supervisor.BuildManifest(d.cfg)
	if err := d.sup.Start(ctx, manifest); err != nil {
		return &SupervisorStartError{Err: err}
	}
	if err := d.sup.EnableAtBoot(ctx); err != nil {
		return &SupervisorStartError{Err: err}
	}
	return nil
}

func (d *Driver) registerSchedules(ctx context.Context) error {
	// The backup entry invokes whatever binary is performing this deploy;
	// nothing installs steward to a fixed path.
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate running binary: %w", err)
	}
	entries := []backup.Entry{
		{
			Name:     "backup",
			Schedule: BackupSchedule,
			User:     "root",
			Command:  exe + " backup >> " + filepath.Join(d.cfg.LogDir, "backup.log") + " 2>&1",
		},
		{
			Name:     "cert-renew",
			Schedule: RenewSchedule,
			User:     "root",
			Command:  "certbot renew --quiet --deploy-hook 'systemctl reload nginx'",
		},
	}
	for _, e := range entries {
		fp := e.Fingerprint()
		stored, err := d.deps.Store.ScheduleFingerprint(e.Name)
		if err != nil {
			return err
		}
		// A matching fingerprint lets the re-run skip the table parse,
		// but only while the table file is still on disk.
		if stored == fp {
			if _, err := os.Stat(d.deps.CronPath); err == nil {
				d.deps.Log.Info("schedule entry unchanged since last run", "entry", e.Name)
				continue
			}
		}
		if _, err := d.reg.Register(e); err != nil {
			return err
		}
		if err := d.deps.Store.SetScheduleFingerprint(e.Name, fp); err != nil {
			return err
		}
	}
	return nil
}
