package firewall

import (
	"context"
	"fmt"
	"strings"

	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
)

// AllowList is the fixed set of rules the deployment needs: administrative
// access plus the two proxy ports. Order matters only for safety — the
// administrative rule must be in place before default-deny activates.
var AllowList = []string{"OpenSSH", "80/tcp", "443/tcp"}

// adminRule is the rule that keeps the operator from locking themselves out.
const adminRule = "OpenSSH"

// Configurator owns the host firewall rule set.
type Configurator struct {
	run runner.Runner
	log *logging.Logger
}

// New creates the firewall configurator.
func New(run runner.Runner, log *logging.Logger) *Configurator {
	return &Configurator{run: run, log: log}
}

// Apply converges the firewall to the allow-list and enables default-deny.
// Idempotent: rules already present are skipped, an active firewall is not
// re-enabled. Default-deny is only switched on after the administrative
// rule is confirmed in the rule set ufw will enforce.
func (c *Configurator) Apply(ctx context.Context) error {
	status, err := c.run.Output(ctx, "ufw", "status")
	if err != nil {
		return fmt.Errorf("read firewall status: %w", err)
	}
	active := strings.Contains(status, "Status: active")

	for _, rule := range AllowList {
		if active && hasRule(status, rule) {
			c.log.Info("firewall rule already present, skipping", "rule", rule)
			continue
		}
		if err := c.run.Run(ctx, "ufw", "allow", rule); err != nil {
			return fmt.Errorf("allow %s: %w", rule, err)
		}
	}

	// Confirm administrative access before default-deny. While ufw is
	// inactive "ufw status" lists no rules at all, so stored rules are
	// read from "ufw show added" instead.
	confirmed := false
	if active {
		status, err = c.run.Output(ctx, "ufw", "status")
		if err != nil {
			return fmt.Errorf("re-read firewall status: %w", err)
		}
		confirmed = hasRule(status, adminRule)
	} else {
		added, err := c.run.Output(ctx, "ufw", "show", "added")
		if err != nil {
			return fmt.Errorf("read stored firewall rules: %w", err)
		}
		confirmed = hasAddedRule(added, adminRule)
	}
	if !confirmed {
		return fmt.Errorf("refusing to enable default-deny: %s is not allow-listed", adminRule)
	}

	if err := c.run.Run(ctx, "ufw", "default", "deny", "incoming"); err != nil {
		return fmt.Errorf("set default-deny: %w", err)
	}
	if err := c.run.Run(ctx, "ufw", "default", "allow", "outgoing"); err != nil {
		return fmt.Errorf("set default-allow outgoing: %w", err)
	}
	if active {
		c.log.Info("firewall already active")
		return nil
	}
	if err := c.run.Run(ctx, "ufw", "--force", "enable"); err != nil {
		return fmt.Errorf("enable firewall: %w", err)
	}
	c.log.Info("firewall enabled", "rules", strings.Join(AllowList, ", "))
	return nil
}

// hasRule reports whether a ufw status listing already contains rule.
// ufw prints one line per rule with the rule name in the first column.
func hasRule(status, rule string) bool {
	for _, line := range strings.Split(status, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == rule {
			return true
		}
	}
	return false
}

// hasAddedRule reports whether a "ufw show added" listing contains rule.
// Stored rules print one per line as "ufw allow <rule>".
func hasAddedRule(added, rule string) bool {
	for _, line := range strings.Split(added, "\n") {
		if strings.TrimSpace(line) == "ufw allow "+rule {
			return true
		}
	}
	return false
}
