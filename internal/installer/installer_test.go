package installer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/logging"
	"github.com/steward-sh/steward/internal/runner"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&bytes.Buffer{}, false)
}

func TestStepsIncludePM2OnlyForPM2Kind(t *testing.T) {
	i := New(runner.NewMock(), testLogger())
	hasPM2 := func(steps []Step) bool {
		for _, s := range steps {
			if s.Name == "pm2" {
				return true
			}
		}
		return false
	}
	if hasPM2(i.Steps(config.SupervisorSystemd)) {
		t.Error("systemd deployment installs pm2")
	}
	if !hasPM2(i.Steps(config.SupervisorPM2)) {
		t.Error("pm2 deployment does not install pm2")
	}
}

func TestRunInstallsMissingDependencies(t *testing.T) {
	mock := runner.NewMock()
	// dpkg -s fails for everything: nothing installed yet.
	mock.Fail["dpkg -s"] = "not installed"
	mock.Stdout["systemctl is-active"] = "inactive"
	i := New(mock, testLogger())

	if err := i.Run(context.Background(), i.Steps(config.SupervisorSystemd)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, pkg := range []string{"nodejs", "postgresql", "redis-server", "nginx", "certbot", "ufw"} {
		if !mock.Called("apt-get install -y -qq " + pkg) {
			t.Errorf("%s not installed", pkg)
		}
	}
	for _, unit := range []string{"postgresql", "redis-server", "nginx"} {
		if !mock.Called("systemctl enable " + unit) {
			t.Errorf("%s not enabled at boot", unit)
		}
		if !mock.Called("systemctl start " + unit) {
			t.Errorf("%s not started", unit)
		}
	}
}

func TestRunSkipsPresentDependencies(t *testing.T) {
	mock := runner.NewMock()
	// dpkg -s succeeds: everything already installed; daemons active.
	mock.Stdout["systemctl is-active"] = "active"
	i := New(mock, testLogger())

	if err := i.Run(context.Background(), i.Steps(config.SupervisorSystemd)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.Called("apt-get install") {
		t.Error("present dependency was reinstalled")
	}
	if mock.Called("systemctl start") {
		t.Error("healthy daemon was restarted")
	}
	// enable stays: it is idempotent and keeps boot persistence converged.
	if !mock.Called("systemctl enable postgresql") {
		t.Error("boot persistence not converged")
	}
}

func TestRunTwiceConverges(t *testing.T) {
	mock := runner.NewMock()
	mock.Fail["dpkg -s"] = "not installed"
	mock.Stdout["systemctl is-active"] = "inactive"
	i := New(mock, testLogger())
	if err := i.Run(context.Background(), i.Steps(config.SupervisorSystemd)); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Second run: packages now present, daemons now active.
	mock2 := runner.NewMock()
	mock2.Stdout["systemctl is-active"] = "active"
	i2 := New(mock2, testLogger())
	if err := i2.Run(context.Background(), i2.Steps(config.SupervisorSystemd)); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if mock2.CallCount("apt-get install") != 0 {
		t.Error("second run reinstalled packages")
	}
	if mock2.CallCount("systemctl start") != 0 {
		t.Error("second run restarted daemons")
	}
}

func TestRunFailsFastOnInstallError(t *testing.T) {
	mock := runner.NewMock()
	mock.Fail["dpkg -s"] = "not installed"
	mock.Fail["apt-get install -y -qq postgresql"] = "repository unreachable"
	i := New(mock, testLogger())

	err := i.Run(context.Background(), i.Steps(config.SupervisorSystemd))
	if err == nil {
		t.Fatal("Run succeeded despite install failure")
	}
	if !strings.Contains(err.Error(), "postgresql") {
		t.Errorf("error does not name the failed dependency: %v", err)
	}
	// Steps after the failed one must not have run.
	if mock.Called("apt-get install -y -qq nginx") {
		t.Error("later step ran after a fatal install error")
	}
}

func TestEnsureDatabasesIdempotent(t *testing.T) {
	mock := runner.NewMock()
	// Roles and databases all exist already.
	mock.Stdout["sudo -u postgres psql -tAc"] = "1"
	i := New(mock, testLogger())
	if err := i.EnsureDatabases(context.Background(), "p"); err != nil {
		t.Fatalf("EnsureDatabases: %v", err)
	}
	for _, call := range mock.Calls {
		if strings.Contains(call, "CREATE ROLE") || strings.Contains(call, "CREATE DATABASE") {
			t.Errorf("re-run created duplicate: %s", call)
		}
	}
	// Password still reasserted.
	if mock.CallCount("sudo -u postgres psql -c ALTER ROLE") != 4 {
		t.Error("role passwords not reasserted on re-run")
	}
}

func TestEnsureDatabasesCreatesMissing(t *testing.T) {
	mock := runner.NewMock()
	// Nothing exists: the existence probes return empty.
	i := New(mock, testLogger())
	if err := i.EnsureDatabases(context.Background(), "p"); err != nil {
		t.Fatalf("EnsureDatabases: %v", err)
	}
	for _, db := range []string{"pds", "appview", "modview", "syncd"} {
		if !mock.Called("sudo -u postgres psql -c CREATE ROLE " + db + " LOGIN") {
			t.Errorf("role %s not created", db)
		}
		if !mock.Called("sudo -u postgres psql -c CREATE DATABASE " + db + " OWNER " + db) {
			t.Errorf("database %s not created", db)
		}
	}
}

func TestEscapeSQL(t *testing.T) {
	if got := escapeSQL("pa'ss"); got != "pa''ss" {
		t.Errorf("escapeSQL = %q", got)
	}
}
