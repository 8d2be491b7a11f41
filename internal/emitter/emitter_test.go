package emitter

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/services"
)

func testConfig(t *testing.T) *config.DeploymentConfig {
	t.Helper()
	cfg, err := config.New("example.test", "a@example.test", "p", config.SupervisorSystemd)
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	return cfg
}

func TestRenderProducesOneArtifactPerService(t *testing.T) {
	arts, err := Render(testConfig(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(arts) != 4 {
		t.Fatalf("got %d artifacts, want 4", len(arts))
	}
	wantPorts := map[string]string{
		services.DataServer: "2583",
		services.AppView:    "3000",
		services.ModView:    "3001",
		services.SyncD:      "3002",
	}
	for name, port := range wantPorts {
		a, ok := arts[name]
		if !ok {
			t.Fatalf("missing artifact for %s", name)
		}
		key := strings.ToUpper(name) + "_PORT"
		if a.Values[key] != port {
			t.Errorf("%s = %q, want %q", key, a.Values[key], port)
		}
	}
}

func TestRenderDomainConsistentAcrossArtifacts(t *testing.T) {
	cfg := testConfig(t)
	arts, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for name, a := range arts {
		prefix := strings.ToUpper(name)
		if got := a.Values[prefix+"_HOSTNAME"]; got != "example.test" {
			t.Errorf("%s hostname = %q, want example.test", name, got)
		}
		if got := a.Values[prefix+"_PUBLIC_URL"]; got != "https://example.test" {
			t.Errorf("%s public URL = %q", name, got)
		}
	}
}

func TestRenderCrossReferencesMatchSiblingPorts(t *testing.T) {
	arts, err := Render(testConfig(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, d := range services.Catalog() {
		a := arts[d.Name]
		for _, dep := range d.DependsOn {
			depDef, ok := services.Lookup(dep)
			if !ok {
				t.Fatalf("unknown dependency %s", dep)
			}
			key := strings.ToUpper(d.Name) + "_" + strings.ToUpper(dep) + "_URL"
			want := fmt.Sprintf("http://127.0.0.1:%d", depDef.Port)
			if a.Values[key] != want {
				t.Errorf("%s = %q, want %q", key, a.Values[key], want)
			}
			// The referenced port must equal the one in the sibling's own artifact.
			sibling := arts[dep]
			if sp := sibling.Values[strings.ToUpper(dep)+"_PORT"]; !strings.HasSuffix(a.Values[key], ":"+sp) {
				t.Errorf("%s references port %q but %s advertises %q", d.Name, a.Values[key], dep, sp)
			}
		}
	}
}

func TestRenderDBURLEscapesPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPassword = "p@ss:w/rd#1"
	arts, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, d := range services.Catalog() {
		raw := arts[d.Name].Values[strings.ToUpper(d.Name)+"_DB_URL"]
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("%s DSN %q does not parse: %v", d.Name, raw, err)
		}
		pw, ok := u.User.Password()
		if !ok || pw != cfg.DBPassword {
			t.Errorf("%s DSN password = %q, want %q", d.Name, pw, cfg.DBPassword)
		}
		if u.Host != "127.0.0.1:5432" {
			t.Errorf("%s DSN host = %q", d.Name, u.Host)
		}
		if u.Path != "/"+d.Database {
			t.Errorf("%s DSN path = %q, want /%s", d.Name, u.Path, d.Database)
		}
	}
}

func TestRenderSharedSecretIdenticalEverywhere(t *testing.T) {
	cfg := testConfig(t)
	arts, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for name, a := range arts {
		key := strings.ToUpper(name) + "_SERVICE_SECRET"
		if a.Values[key] != cfg.Secrets.ServiceSecret {
			t.Errorf("%s shared secret mismatch", name)
		}
	}
}

func TestRenderModPasswordHashVerifies(t *testing.T) {
	cfg := testConfig(t)
	arts, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	hash := arts[services.ModView].Values["MODVIEW_ADMIN_PASSWORD_HASH"]
	if hash == "" {
		t.Fatal("modview artifact missing admin password hash")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(cfg.Secrets.ModPassword)); err != nil {
		t.Errorf("hash does not verify against generated password: %v", err)
	}
}

func TestWriteAllAtomicAndRestrictive(t *testing.T) {
	cfg := testConfig(t)
	arts, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	dir := t.TempDir()
	for name, a := range arts {
		a.Path = filepath.Join(dir, name+".env")
		arts[name] = a
	}
	if err := WriteAll(arts); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	for name, a := range arts {
		fi, err := os.Stat(a.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if fi.Mode().Perm() != 0600 {
			t.Errorf("%s artifact mode = %o, want 0600", name, fi.Mode().Perm())
		}
	}
	// No temp residue from the atomic writes.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 4 {
		t.Errorf("directory has %d entries, want 4", len(entries))
	}
}

func TestWriteAllOverwrites(t *testing.T) {
	dir := t.TempDir()
	write := func(cfg *config.DeploymentConfig) string {
		arts, err := Render(cfg)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		for name, a := range arts {
			a.Path = filepath.Join(dir, name+".env")
			arts[name] = a
		}
		if err := WriteAll(arts); err != nil {
			t.Fatalf("WriteAll: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, services.DataServer+".env"))
		if err != nil {
			t.Fatalf("read artifact: %v", err)
		}
		return string(data)
	}
	first := write(testConfig(t))
	second := write(testConfig(t))
	if first == second {
		t.Fatal("re-render did not overwrite artifact with fresh secrets")
	}
	if strings.Count(second, "PDS_PORT=") != 1 {
		t.Fatal("artifact was appended to, not overwritten")
	}
}
