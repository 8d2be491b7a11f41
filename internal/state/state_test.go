package state

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "steward.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTLSStateRoundTrip(t *testing.T) {
	s := testStore(t)
	v, err := s.TLSState("example.test")
	if err != nil {
		t.Fatalf("TLSState: %v", err)
	}
	if v != "" {
		t.Errorf("fresh store TLS state = %q, want empty", v)
	}
	if err := s.SetTLSState("example.test", "secured"); err != nil {
		t.Fatalf("SetTLSState: %v", err)
	}
	v, err = s.TLSState("example.test")
	if err != nil {
		t.Fatalf("TLSState: %v", err)
	}
	if v != "secured" {
		t.Errorf("TLS state = %q, want secured", v)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steward.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetTLSState("example.test", "cert_pending"); err != nil {
		t.Fatalf("SetTLSState: %v", err)
	}
	if err := s.SetScheduleFingerprint("backup", "abc123"); err != nil {
		t.Fatalf("SetScheduleFingerprint: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, _ := s2.TLSState("example.test"); v != "cert_pending" {
		t.Errorf("TLS state after reopen = %q", v)
	}
	if v, _ := s2.ScheduleFingerprint("backup"); v != "abc123" {
		t.Errorf("schedule fingerprint after reopen = %q", v)
	}
}

func TestRunJournal(t *testing.T) {
	s := testStore(t)
	if _, found, err := s.LastRun(); err != nil || found {
		t.Fatalf("LastRun on empty store = found=%v err=%v", found, err)
	}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := RunRecord{
			Started:  base.Add(time.Duration(i) * time.Hour),
			Finished: base.Add(time.Duration(i)*time.Hour + 5*time.Minute),
			Steps:    []string{"secrets", "installer"},
		}
		if i == 2 {
			r.FailedStep = "proxy"
			r.Error = "nginx reload failed"
		}
		if err := s.RecordRun(r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	last, found, err := s.LastRun()
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if !found {
		t.Fatal("LastRun found nothing")
	}
	if last.FailedStep != "proxy" {
		t.Errorf("last run failed step = %q, want proxy", last.FailedStep)
	}
	if !last.Started.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("last run started = %v", last.Started)
	}
}
