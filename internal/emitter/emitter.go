package emitter

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/steward-sh/steward/internal/config"
	"github.com/steward-sh/steward/internal/fileutil"
	"github.com/steward-sh/steward/internal/services"
)

// Artifact is the rendered configuration for one service: an env-format
// key-value set written to the service's working directory.
type Artifact struct {
	Service string
	Path    string
	Values  map[string]string
}

// Render produces one artifact per catalog service from the shared config.
// Every cross-service reference (sibling URLs, ports, shared secrets) is
// derived from the catalog and config alone, so independently rendered
// artifacts can never disagree.
func Render(cfg *config.DeploymentConfig) (map[string]Artifact, error) {
	catalog := services.Catalog()
	urls := make(map[string]string, len(catalog))
	for _, d := range catalog {
		urls[d.Name] = fmt.Sprintf("http://127.0.0.1:%d", d.Port)
	}

	modHash, err := bcrypt.GenerateFromPassword([]byte(cfg.Secrets.ModPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash moderation admin password: %w", err)
	}

	out := make(map[string]Artifact, len(catalog))
	for _, d := range catalog {
		prefix := strings.ToUpper(d.Name)
		v := map[string]string{
			prefix + "_HOSTNAME":       cfg.Domain,
			prefix + "_PORT":           fmt.Sprintf("%d", d.Port),
			prefix + "_PUBLIC_URL":     cfg.PublicURL(),
			prefix + "_SERVICE_SECRET": cfg.Secrets.ServiceSecret,
			prefix + "_LOG_FILE":       filepath.Join(cfg.LogDir, d.Name+".log"),
		}
		if d.Database != "" {
			// url.UserPassword escapes the operator's password, which is
			// only required to be non-empty.
			dsn := url.URL{
				Scheme: "postgres",
				User:   url.UserPassword(d.Database, cfg.DBPassword),
				Host:   "127.0.0.1:5432",
				Path:   "/" + d.Database,
			}
			v[prefix+"_DB_URL"] = dsn.String()
		}
		for _, dep := range d.DependsOn {
			u, ok := urls[dep]
			if !ok {
				return nil, fmt.Errorf("service %s references unknown service %s", d.Name, dep)
			}
			v[prefix+"_"+strings.ToUpper(dep)+"_URL"] = u
		}

		switch d.Name {
		case services.DataServer:
			v[prefix+"_SIGNING_KEY"] = cfg.Secrets.SigningKey
			v[prefix+"_ROTATION_KEY"] = cfg.Secrets.RotationKey
			v[prefix+"_ADMIN_PASSWORD"] = cfg.Secrets.AdminPassword
			v[prefix+"_DATA_DIR"] = filepath.Join(d.Dir, "data")
		case services.AppView, services.ModView:
			v[prefix+"_SESSION_SECRET"] = cfg.Secrets.SessionSecret
		}
		if d.Name == services.ModView {
			v[prefix+"_ADMIN_PASSWORD_HASH"] = string(modHash)
		}

		out[d.Name] = Artifact{
			Service: d.Name,
			Path:    filepath.Join(d.Dir, ".env"),
			Values:  v,
		}
	}
	return out, nil
}

// WriteAll persists every artifact with owner-only permissions, each via an
// atomic temp-file-and-rename so a concurrently starting service never
// observes a partial file. Existing artifacts are overwritten, not appended.
func WriteAll(artifacts map[string]Artifact) error {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a := artifacts[name]
		if err := fileutil.WriteAtomic(a.Path, []byte(a.Env()), 0600); err != nil {
			return fmt.Errorf("write artifact for %s: %w", name, err)
		}
	}
	return nil
}

// Env renders the artifact in env-file format with deterministic key order.
func (a Artifact) Env() string {
	keys := make([]string, 0, len(a.Values))
	for k := range a.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by steward for %s. Do not edit; re-run steward deploy.\n", a.Service)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, a.Values[k])
	}
	return b.String()
}
