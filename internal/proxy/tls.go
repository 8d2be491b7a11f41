package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steward-sh/steward/internal/fileutil"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
)

// State is the position of the certificate-issuance machine for a domain.
type State string

const (
	// Unsecured: no site configuration written yet.
	Unsecured State = "unsecured"
	// CertPending: routing rules are live with the redirect disabled so a
	// challenge can be served over plain HTTP; no certificate yet.
	CertPending State = "cert_pending"
	// Secured: a certificate was issued and the redirect is enabled.
	Secured State = "secured"
)

// IssuanceError wraps a certificate failure. It is confined to the state
// machine: the domain stays in CertPending and the rest of a run proceeds.
type IssuanceError struct {
	Domain string
	Err    error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("certificate issuance for %s: %v", e.Domain, e.Err)
}

func (e *IssuanceError) Unwrap() error { return e.Err }

// StateStore persists the machine position between runs.
type StateStore interface {
	TLSState(domain string) (string, error)
	SetTLSState(domain, st string) error
}

// Paths locates the nginx site directories and the challenge webroot.
// Overridable in tests.
type Paths struct {
	SitesAvailable string
	SitesEnabled   string
	Webroot        string
}

// DefaultPaths returns the Debian nginx layout.
func DefaultPaths() Paths {
	return Paths{
		SitesAvailable: "/etc/nginx/sites-available",
		SitesEnabled:   "/etc/nginx/sites-enabled",
		Webroot:        acmeWebroot,
	}
}

// Configurator owns the proxy site configuration and the TLS state machine
// for one domain. No other component touches the site file.
type Configurator struct {
	domain     string
	adminEmail string
	run        runner.Runner
	log        *logging.Logger
	store      StateStore
	paths      Paths
}

// NewConfigurator creates the proxy configurator for a domain.
func NewConfigurator(domain, adminEmail string, run runner.Runner, log *logging.Logger, store StateStore, paths Paths) *Configurator {
	return &Configurator{
		domain:     domain,
		adminEmail: adminEmail,
		run:        run,
		log:        log,
		store:      store,
		paths:      paths,
	}
}

// Current returns the persisted state, Unsecured when never configured.
func (c *Configurator) Current() (State, error) {
	v, err := c.store.TLSState(c.domain)
	if err != nil {
		return Unsecured, fmt.Errorf("read TLS state: %w", err)
	}
	if v == "" {
		return Unsecured, nil
	}
	return State(v), nil
}

// BeginChallenge moves Unsecured (or a re-run in CertPending) to
// CertPending: the site is written with the redirect disabled and the
// proxy reloaded, so a challenge can be served over plain HTTP.
// A Secured domain is left alone; its site already carries the redirect.
func (c *Configurator) BeginChallenge(ctx context.Context) error {
	st, err := c.Current()
	if err != nil {
		return err
	}
	if st == Secured {
		c.log.Debug("domain already secured, keeping redirect enabled", "domain", c.domain)
		return c.writeSite(ctx, true)
	}
	if err := c.writeSite(ctx, false); err != nil {
		return err
	}
	if err := c.store.SetTLSState(c.domain, string(CertPending)); err != nil {
		return fmt.Errorf("persist TLS state: %w", err)
	}
	c.log.Info("proxy routing live, awaiting certificate", "domain", c.domain)
	return nil
}

// Issue attempts CertPending → Secured. On success the redirect is enabled
// and the proxy reloaded. On failure the domain remains in CertPending and
// an *IssuanceError is returned; the machine never regresses to Unsecured.
func (c *Configurator) Issue(ctx context.Context) error {
	st, err := c.Current()
	if err != nil {
		return err
	}
	if st == Unsecured {
		return fmt.Errorf("cannot issue certificate for %s before routing rules exist", c.domain)
	}
	if err := os.MkdirAll(c.paths.Webroot, 0755); err != nil {
		return fmt.Errorf("create ACME webroot: %w", err)
	}
	err = c.run.Run(ctx, "certbot", "certonly",
		"--webroot", "--webroot-path", c.paths.Webroot,
		"--domain", c.domain,
		"--email", c.adminEmail,
		"--agree-tos", "--non-interactive", "--keep-until-expiring")
	if err != nil {
		return &IssuanceError{Domain: c.domain, Err: err}
	}
	if err := c.writeSite(ctx, true); err != nil {
		return err
	}
	if err := c.store.SetTLSState(c.domain, string(Secured)); err != nil {
		return fmt.Errorf("persist TLS state: %w", err)
	}
	c.log.Info("certificate issued, redirect enabled", "domain", c.domain)
	return nil
}

// Renew re-runs issuance for a Secured domain. Silent on success; on
// failure the domain stays Secured and the error is reported.
func (c *Configurator) Renew(ctx context.Context) error {
	st, err := c.Current()
	if err != nil {
		return err
	}
	if st != Secured {
		return fmt.Errorf("renewal requires a secured domain, %s is %s", c.domain, st)
	}
	err = c.run.Run(ctx, "certbot", "renew", "--quiet")
	if err != nil {
		return &IssuanceError{Domain: c.domain, Err: err}
	}
	return nil
}

// writeSite renders the site, installs it atomically, links it into
// sites-enabled, validates, and reloads nginx.
func (c *Configurator) writeSite(ctx context.Context, redirect bool) error {
	available := filepath.Join(c.paths.SitesAvailable, c.domain)
	if err := fileutil.WriteAtomic(available, []byte(Site(c.domain, redirect)), 0644); err != nil {
		return fmt.Errorf("write proxy site: %w", err)
	}
	enabled := filepath.Join(c.paths.SitesEnabled, c.domain)
	if _, err := os.Lstat(enabled); os.IsNotExist(err) {
		if err := os.Symlink(available, enabled); err != nil {
			return fmt.Errorf("enable proxy site: %w", err)
		}
	}
	if err := c.run.Run(ctx, "nginx", "-t"); err != nil {
		return fmt.Errorf("proxy configuration rejected: %w", err)
	}
	if err := c.run.Run(ctx, "systemctl", "reload", "nginx"); err != nil {
		return fmt.Errorf("reload proxy: %w", err)
	}
	return nil
}
