package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTLS       = []byte("tls")
	bucketRuns      = []byte("runs")
	bucketSchedules = []byte("schedules")
)

// RunRecord is one driver run in the journal.
type RunRecord struct {
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Steps      []string  `json:"steps"`
	FailedStep string    `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`
	CertError  string    `json:"cert_error,omitempty"`
}

// Store wraps a BoltDB database for deployment state that must survive
// between runs: the TLS state machine position, the run journal, and
// fingerprints of registered schedule entries.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the database at path and ensures all buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTLS, bucketRuns, bucketSchedules} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TLSState returns the persisted TLS state machine position for domain,
// or "" when the domain has never been configured.
func (s *Store) TLSState(domain string) (string, error) {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		v = string(tx.Bucket(bucketTLS).Get([]byte(domain)))
		return nil
	})
	return v, err
}

// SetTLSState persists the TLS state machine position for domain.
func (s *Store) SetTLSState(domain, st string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTLS).Put([]byte(domain), []byte(st))
	})
}

// RecordRun appends a run record to the journal.
// Key format: RFC3339Nano start time for chronological ordering.
func (s *Store) RecordRun(r RunRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	key := []byte(r.Started.UTC().Format(time.RFC3339Nano))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(key, data)
	})
}

// LastRun returns the most recent run record, or false if none exists.
func (s *Store) LastRun() (RunRecord, bool, error) {
	var r RunRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &r)
	})
	return r, found, err
}

// ScheduleFingerprint returns the stored fingerprint for a named schedule
// entry, or "" if it was never registered.
func (s *Store) ScheduleFingerprint(name string) (string, error) {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		v = string(tx.Bucket(bucketSchedules).Get([]byte(name)))
		return nil
	})
	return v, err
}

// SetScheduleFingerprint records that a schedule entry with the given
// fingerprint is registered on the host.
func (s *Store) SetScheduleFingerprint(name, fingerprint string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchedules).Put([]byte(name), []byte(fingerprint))
	})
}
