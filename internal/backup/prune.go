package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// stampLayout names backup artifacts by their creation time.
const stampLayout = "20060102-150405"

// RetentionWindow is how long backup artifacts are kept.
const RetentionWindow = 7 * 24 * time.Hour

// UniqueStamp returns a timestamp-based artifact stem that does not collide
// with any name in existing, even for two triggers within the same
// scheduling tick. Collisions get a numeric suffix.
func UniqueStamp(now time.Time, existing map[string]bool) string {
	base := now.Format(stampLayout)
	if !existing[base] {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !existing[candidate] {
			return candidate
		}
	}
}

// stampTime extracts the creation time from an artifact file name.
func stampTime(name string) (time.Time, bool) {
	stem := strings.TrimSuffix(name, ".tar.gz")
	if stem == name {
		return time.Time{}, false
	}
	// Strip a collision suffix.
	if len(stem) > len(stampLayout) {
		stem = stem[:len(stampLayout)]
	}
	t, err := time.Parse(stampLayout, stem)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Prune removes backup artifacts older than retention, skipping current
// (the artifact being produced right now) and anything that is not a
// steward backup artifact. Returns the removed file names.
func Prune(dir string, retention time.Duration, now time.Time, current string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == current {
			continue
		}
		ts, ok := stampTime(e.Name())
		if !ok {
			continue
		}
		if now.Sub(ts) <= retention {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("prune %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
