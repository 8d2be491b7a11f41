package main

import (
	"errors"
	"testing"

	"github.com/steward-sh/steward/internal/deploy"
)

func TestEnsureRoot(t *testing.T) {
	if err := ensureRoot(0); err != nil {
		t.Fatalf("ensureRoot(0): %v", err)
	}
	err := ensureRoot(1000)
	var pre *deploy.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("ensureRoot(1000) = %v, want *deploy.PreconditionError", err)
	}
}
