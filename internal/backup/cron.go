package backup

import (
	"fmt"
	"os"
	"strings"

	cron "github.com/robfig/cron/v3"

	"github.com/steward-sh/steward/internal/fileutil"
	"github.com/steward-sh/steward/internal/logging"
)

// Entry is one recurring job in the steward cron table.
type Entry struct {
	// Name identifies the entry for replacement on re-registration.
	Name     string
	Schedule string
	User     string
	Command  string
}

// Fingerprint is the rendered crontab line, used to detect an identical
// existing registration.
func (e Entry) Fingerprint() string {
	return fmt.Sprintf("%s %s %s", e.Schedule, e.User, e.Command)
}

func (e Entry) render() string {
	return fmt.Sprintf("# steward:%s\n%s\n", e.Name, e.Fingerprint())
}

// Registrar owns the steward cron table file (a /etc/cron.d drop-in) and
// converges it by read-modify-write. No other component touches it.
type Registrar struct {
	path string
	log  *logging.Logger
}

// NewRegistrar creates a registrar managing the cron table at path.
func NewRegistrar(path string, log *logging.Logger) *Registrar {
	return &Registrar{path: path, log: log}
}

// Register adds or replaces the entry. An identical existing entry is
// detected and skipped; a changed schedule or command replaces the old
// line rather than duplicating it. Returns whether the table was modified.
func (r *Registrar) Register(e Entry) (bool, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(e.Schedule); err != nil {
		return false, fmt.Errorf("invalid schedule %q for %s: %w", e.Schedule, e.Name, err)
	}

	existing, err := os.ReadFile(r.path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read cron table: %w", err)
	}

	marker := "# steward:" + e.Name
	var kept []string
	found := false
	lines := strings.Split(string(existing), "\n")
	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == marker {
			// Marker plus the entry line that follows it.
			if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == e.Fingerprint() {
				r.log.Info("schedule entry already registered, skipping", "entry", e.Name)
				return false, nil
			}
			found = true
			i++ // drop the stale entry line too
			continue
		}
		kept = append(kept, lines[i])
	}

	var b strings.Builder
	content := strings.TrimRight(strings.Join(kept, "\n"), "\n")
	if content != "" {
		b.WriteString(content)
		b.WriteString("\n")
	}
	b.WriteString(e.render())

	if err := fileutil.WriteAtomic(r.path, []byte(b.String()), 0644); err != nil {
		return false, fmt.Errorf("write cron table: %w", err)
	}
	if found {
		r.log.Info("schedule entry replaced", "entry", e.Name, "schedule", e.Schedule)
	} else {
		r.log.Info("schedule entry registered", "entry", e.Name, "schedule", e.Schedule)
	}
	return true, nil
}
