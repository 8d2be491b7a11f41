package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steward-sh/steward/internal/fileutil"
)

// WriteSecretsFile persists all generated key material to c.SecretsPath in
// env format with owner-only permissions. Written atomically so a reader
// never sees a partial file; overwritten wholesale on every run.
func (c *DeploymentConfig) WriteSecretsFile() error {
	if err := os.MkdirAll(filepath.Dir(c.SecretsPath), 0700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	var b strings.Builder
	b.WriteString("# Generated by steward. Owner-only: contains live key material.\n")
	fmt.Fprintf(&b, "STEWARD_SIGNING_KEY=%s\n", c.Secrets.SigningKey)
	fmt.Fprintf(&b, "STEWARD_ROTATION_KEY=%s\n", c.Secrets.RotationKey)
	fmt.Fprintf(&b, "STEWARD_SERVICE_SECRET=%s\n", c.Secrets.ServiceSecret)
	fmt.Fprintf(&b, "STEWARD_SESSION_SECRET=%s\n", c.Secrets.SessionSecret)
	fmt.Fprintf(&b, "STEWARD_ADMIN_PASSWORD=%s\n", c.Secrets.AdminPassword)
	fmt.Fprintf(&b, "STEWARD_MOD_PASSWORD=%s\n", c.Secrets.ModPassword)
	if err := fileutil.WriteAtomic(c.SecretsPath, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}
