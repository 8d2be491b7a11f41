package installer

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-sh/steward/internal/services"
)

// EnsureDatabases creates one role and one database per catalog service.
// Must run strictly after the postgresql daemon is started. Idempotent:
// existing roles and databases are detected and skipped; the role password
// is reasserted every run so a changed operator password takes effect.
func (i *Installer) EnsureDatabases(ctx context.Context, password string) error {
	for _, d := range services.Catalog() {
		if d.Database == "" {
			continue
		}
		exists, err := i.pgExists(ctx, fmt.Sprintf("SELECT 1 FROM pg_roles WHERE rolname='%s'", d.Database))
		if err != nil {
			return fmt.Errorf("check role %s: %w", d.Database, err)
		}
		if exists {
			i.log.Info("database role already exists, skipping", "role", d.Database)
		} else {
			if err := i.psql(ctx, fmt.Sprintf("CREATE ROLE %s LOGIN", d.Database)); err != nil {
				return fmt.Errorf("create role %s: %w", d.Database, err)
			}
		}
		if err := i.psql(ctx, fmt.Sprintf("ALTER ROLE %s WITH PASSWORD '%s'", d.Database, escapeSQL(password))); err != nil {
			return fmt.Errorf("set password for %s: %w", d.Database, err)
		}

		exists, err = i.pgExists(ctx, fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname='%s'", d.Database))
		if err != nil {
			return fmt.Errorf("check database %s: %w", d.Database, err)
		}
		if exists {
			i.log.Info("database already exists, skipping", "database", d.Database)
			continue
		}
		if err := i.psql(ctx, fmt.Sprintf("CREATE DATABASE %s OWNER %s", d.Database, d.Database)); err != nil {
			return fmt.Errorf("create database %s: %w", d.Database, err)
		}
	}
	return nil
}

func (i *Installer) pgExists(ctx context.Context, query string) (bool, error) {
	out, err := i.run.Output(ctx, "sudo", "-u", "postgres", "psql", "-tAc", query)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "1", nil
}

func (i *Installer) psql(ctx context.Context, stmt string) error {
	return i.run.Run(ctx, "sudo", "-u", "postgres", "psql", "-c", stmt)
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
