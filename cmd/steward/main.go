package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steward-sh/steward/internal/backup"
	"github.com/steward-sh/steward/internal/clock"
	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/deploy"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/proxy"
	"github.com/steward-sh/steward/internal/runner"
	"github.com/steward-sh/steward/internal/services"
	"github.com/steward-sh/steward/internal/state"
	"github.com/steward-sh/steward/internal/supervisor"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "steward",
		Short:         "Single-host provisioning for the federated social stack",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newDeployCmd(),
		newStatusCmd(),
		newRestartCmd(),
		newLogsCmd(),
		newBackupCmd(),
		newVersionCmd(),
	)
	return root
}

func newDeployCmd() *cobra.Command {
	var answersPath, supervisorFlag string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision or converge the full stack on this host",
		Long: "Deploy installs dependencies, provisions databases, renders per-service\n" +
			"configuration, configures the reverse proxy, firewall and certificates,\n" +
			"and starts all services. Safe to re-run: a converged host is left alone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), answersPath, supervisorFlag)
		},
	}
	cmd.Flags().StringVar(&answersPath, "answers", "", "YAML answers file for non-interactive deploys")
	cmd.Flags().StringVar(&supervisorFlag, "supervisor", "", "process supervisor (pm2 or systemd), overrides the answers file")
	return cmd
}

func runDeploy(ctx context.Context, answersPath, supervisorFlag string) error {
	// Checked before prompting or opening the state store, so a non-root
	// invocation fails with the precondition message rather than a
	// database permission error. The driver re-checks in its preflight.
	if err := ensureRoot(os.Geteuid()); err != nil {
		return err
	}

	var answers *config.Answers
	if answersPath != "" {
		a, err := config.LoadAnswers(answersPath)
		if err != nil {
			return err
		}
		answers = a
	}
	if supervisorFlag != "" {
		if answers == nil {
			answers = &config.Answers{}
		}
		answers.Supervisor = supervisorFlag
	}

	collector := config.NewCollector(os.Stdin, os.Stdout)
	domain, email, dbPassword, supKind, err := answers.Collect(collector)
	if err != nil {
		return err
	}
	cfg, err := config.New(domain, email, dbPassword, supKind)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogJSON)

	store, err := state.Open(cfg.StateDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	driver, err := deploy.NewDriver(cfg, deploy.Dependencies{
		Run:        runner.NewExec(log),
		Log:        log,
		Store:      store,
		Clock:      clock.Real{},
		SupPaths:   supervisor.DefaultPaths(),
		ProxyPaths: proxy.DefaultPaths(),
	})
	if err != nil {
		return err
	}

	report, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nDeployment complete: %d steps converged.\n", len(report.Steps))
	if report.CertError != nil {
		fmt.Printf("Certificate issuance failed: %v\n", report.CertError)
		fmt.Printf("The stack is reachable over plain HTTP at http://%s until\n", cfg.Domain)
		fmt.Println("DNS is fixed; re-run `steward deploy` to retry issuance.")
	} else {
		fmt.Printf("The stack is live at %s\n", cfg.PublicURL())
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [service]",
		Short: "Show supervisor status for one service or the whole stack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(false)
			sup, err := detectSupervisor(log)
			if err != nil {
				return err
			}
			names := services.Names()
			if len(args) == 1 {
				if _, ok := services.Lookup(args[0]); !ok {
					return fmt.Errorf("unknown service %q (one of %s)", args[0], strings.Join(names, ", "))
				}
				names = args[:1]
			}
			for _, name := range names {
				out, err := sup.Status(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("status of %s: %w", name, err)
				}
				fmt.Printf("--- %s ---\n%s\n", name, out)
			}
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <service>",
		Short: "Restart one service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := services.Lookup(args[0]); !ok {
				return fmt.Errorf("unknown service %q (one of %s)", args[0], strings.Join(services.Names(), ", "))
			}
			log := logging.New(false)
			sup, err := detectSupervisor(log)
			if err != nil {
				return err
			}
			return sup.Restart(cmd.Context(), args[0])
		},
	}
}

func newLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Show recent log lines for one service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := services.Lookup(args[0]); !ok {
				return fmt.Errorf("unknown service %q (one of %s)", args[0], strings.Join(services.Names(), ", "))
			}
			log := logging.New(false)
			sup, err := detectSupervisor(log)
			if err != nil {
				return err
			}
			out, err := sup.TailLogs(cmd.Context(), args[0], lines)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of log lines to show")
	return cmd
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Run one backup cycle (invoked by the registered schedule)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(false)
			dir := envOr("STEWARD_BACKUP_DIR", "/var/backups/steward")
			job := backup.NewJob(dir, runner.NewExec(log), log, clock.Real{})
			return job.Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the steward version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("steward " + version)
		},
	}
}

// detectSupervisor picks the backend for inspection commands from what is
// on the host: a pm2 ecosystem file means a pm2-supervised deployment,
// otherwise systemd. Exactly one manifest kind exists after a deploy.
func detectSupervisor(log *logging.Logger) (supervisor.Supervisor, error) {
	paths := supervisor.DefaultPaths()
	kind := supervisor.KindSystemd
	if _, err := os.Stat(paths.EcosystemFile); err == nil {
		kind = supervisor.KindPM2
	}
	return supervisor.New(kind, runner.NewExec(log), log, paths)
}

func ensureRoot(euid int) error {
	if euid != 0 {
		return &deploy.PreconditionError{Reason: "must run as root"}
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
