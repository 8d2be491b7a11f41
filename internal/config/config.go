package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/steward-sh/steward/internal/secrets"
)

// Supervisor strategy selectors. Exactly one is active per deployment.
const (
	SupervisorPM2     = "pm2"
	SupervisorSystemd = "systemd"
)

// Secrets holds all key material generated for one deployment run.
// Values are lowercase hex, generated exactly once per run, never reused
// across runs, and never logged.
type Secrets struct {
	// SigningKey signs records produced by the data server (256-bit).
	SigningKey string
	// RotationKey is the identity rotation key for the data server (256-bit).
	RotationKey string
	// ServiceSecret authenticates calls between the four services (256-bit).
	ServiceSecret string
	// SessionSecret signs session tokens issued by the views (256-bit).
	SessionSecret string
	// AdminPassword is the data server admin password (128-bit).
	AdminPassword string
	// ModPassword is the moderation view admin password (128-bit).
	ModPassword string
}

// DeploymentConfig is the immutable value set every component reads.
// It is assembled once at run start from operator input plus generated
// secrets; no component mutates it or reads ambient process state instead.
type DeploymentConfig struct {
	Domain         string
	AdminEmail     string
	DBPassword     string
	SupervisorKind string
	Secrets        Secrets

	// Host paths, overridable through STEWARD_* environment variables.
	SecretsPath  string
	StateDBPath  string
	LogDir       string
	BackupDir    string
	TextfilePath string

	LogJSON bool
}

// NewSecrets draws fresh key material from the secure random source.
func NewSecrets() (Secrets, error) {
	var s Secrets
	var err error
	draw := func(bits int) string {
		if err != nil {
			return ""
		}
		var v string
		v, err = secrets.Generate(bits)
		return v
	}
	s.SigningKey = draw(256)
	s.RotationKey = draw(256)
	s.ServiceSecret = draw(256)
	s.SessionSecret = draw(256)
	s.AdminPassword = draw(128)
	s.ModPassword = draw(128)
	if err != nil {
		return Secrets{}, fmt.Errorf("generate deployment secrets: %w", err)
	}
	return s, nil
}

// New assembles a DeploymentConfig from the collected operator values and
// freshly generated secrets, applying environment overrides for host paths.
func New(domain, adminEmail, dbPassword, supervisorKind string) (*DeploymentConfig, error) {
	sec, err := NewSecrets()
	if err != nil {
		return nil, err
	}
	cfg := &DeploymentConfig{
		Domain:         strings.TrimSpace(domain),
		AdminEmail:     strings.TrimSpace(adminEmail),
		DBPassword:     dbPassword,
		SupervisorKind: strings.TrimSpace(supervisorKind),
		Secrets:        sec,

		SecretsPath:  envStr("STEWARD_SECRETS_PATH", "/etc/steward/secrets.env"),
		StateDBPath:  envStr("STEWARD_STATE_DB", "/var/lib/steward/steward.db"),
		LogDir:       envStr("STEWARD_LOG_DIR", "/var/log/steward"),
		BackupDir:    envStr("STEWARD_BACKUP_DIR", "/var/backups/steward"),
		TextfilePath: envStr("STEWARD_TEXTFILE_PATH", ""),
		LogJSON:      envBool("STEWARD_LOG_JSON", false),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the operator-supplied values. Malformed-but-plausible
// values (a domain that does not resolve, a wrong email) surface later as
// proxy or certificate errors; only structural mistakes are caught here.
func (c *DeploymentConfig) Validate() error {
	var errs []error
	if c.Domain == "" {
		errs = append(errs, errors.New("domain must not be empty"))
	}
	if strings.ContainsAny(c.Domain, "/:") {
		errs = append(errs, fmt.Errorf("domain must be a bare hostname, got %q", c.Domain))
	}
	if !strings.Contains(c.AdminEmail, "@") {
		errs = append(errs, fmt.Errorf("admin email %q is not an address", c.AdminEmail))
	}
	if c.DBPassword == "" {
		errs = append(errs, errors.New("database password must not be empty"))
	}
	switch c.SupervisorKind {
	case SupervisorPM2, SupervisorSystemd:
	default:
		errs = append(errs, fmt.Errorf("supervisor must be %s or %s, got %q", SupervisorPM2, SupervisorSystemd, c.SupervisorKind))
	}
	return errors.Join(errs...)
}

// PublicURL returns the externally visible base URL for the deployment.
func (c *DeploymentConfig) PublicURL() string {
	return "https://" + c.Domain
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
