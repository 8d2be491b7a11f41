package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steward-sh/steward/internal/clock"
	"github.com/steward-sh/steward/internal/fileutil"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
	"github.com/steward-sh/steward/internal/services"
)

// Job produces one backup artifact: a dump of every service database plus
// an archive of the data directories, compressed into a single file, then
// prunes artifacts past the retention window. Failures here are the
// scheduled job's to report; they never reach the deployment driver.
type Job struct {
	dir string
	run runner.Runner
	log *logging.Logger
	clk clock.Clock
}

// NewJob creates a backup job writing artifacts to dir.
func NewJob(dir string, run runner.Runner, log *logging.Logger, clk clock.Clock) *Job {
	return &Job{dir: dir, run: run, log: log, clk: clk}
}

// Run executes one backup cycle.
func (j *Job) Run(ctx context.Context) error {
	if err := os.MkdirAll(j.dir, 0700); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	existing := make(map[string]bool)
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return fmt.Errorf("read backup directory: %w", err)
	}
	for _, e := range entries {
		existing[strings.TrimSuffix(e.Name(), ".tar.gz")] = true
	}
	stamp := UniqueStamp(j.clk.Now(), existing)
	stage := filepath.Join(j.dir, stamp)
	if err := os.MkdirAll(stage, 0700); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	for _, d := range services.Catalog() {
		if d.Database == "" {
			continue
		}
		dump, err := j.run.Output(ctx, "sudo", "-u", "postgres", "pg_dump", d.Database)
		if err != nil {
			return fmt.Errorf("dump database %s: %w", d.Database, err)
		}
		dumpPath := filepath.Join(stage, d.Database+".sql")
		if err := fileutil.WriteAtomic(dumpPath, []byte(dump), 0600); err != nil {
			return fmt.Errorf("write dump for %s: %w", d.Database, err)
		}
	}

	dataDir := filepath.Join(services.BaseDir, services.DataServer, "data")
	if _, err := os.Stat(dataDir); err == nil {
		if err := j.run.Run(ctx, "tar", "-cf", filepath.Join(stage, "data.tar"), "-C", services.BaseDir, services.DataServer+"/data"); err != nil {
			return fmt.Errorf("archive data directory: %w", err)
		}
	}

	artifact := stamp + ".tar.gz"
	if err := j.run.Run(ctx, "tar", "-czf", filepath.Join(j.dir, artifact), "-C", j.dir, stamp); err != nil {
		return fmt.Errorf("compress backup set: %w", err)
	}

	removed, err := Prune(j.dir, RetentionWindow, j.clk.Now(), artifact)
	if err != nil {
		return err
	}
	j.log.Info("backup complete", "artifact", artifact, "pruned", len(removed))
	return nil
}
