package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mock records every invocation and answers from configured responses.
// Shared by package tests across the provisioning components.
type Mock struct {
	mu sync.Mutex

	// Calls holds each invocation as "name arg1 arg2 …".
	Calls []string

	// Fail maps a command prefix to an error message. The first prefix
	// matching an invocation makes it fail.
	Fail map[string]string

	// Stdout maps a command prefix to the output returned by Output.
	Stdout map[string]string

	// Binaries on the fake PATH.
	Binaries map[string]bool
}

// NewMock creates an empty mock runner.
func NewMock() *Mock {
	return &Mock{
		Fail:     make(map[string]string),
		Stdout:   make(map[string]string),
		Binaries: make(map[string]bool),
	}
}

func (m *Mock) record(name string, args ...string) string {
	call := strings.TrimSpace(name + " " + strings.Join(args, " "))
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
	return call
}

func (m *Mock) Run(_ context.Context, name string, args ...string) error {
	call := m.record(name, args...)
	for prefix, msg := range m.Fail {
		if strings.HasPrefix(call, prefix) {
			return fmt.Errorf("%s: %s", call, msg)
		}
	}
	return nil
}

func (m *Mock) Output(_ context.Context, name string, args ...string) (string, error) {
	call := m.record(name, args...)
	for prefix, msg := range m.Fail {
		if strings.HasPrefix(call, prefix) {
			return "", fmt.Errorf("%s: %s", call, msg)
		}
	}
	for prefix, out := range m.Stdout {
		if strings.HasPrefix(call, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (m *Mock) LookPath(name string) bool {
	return m.Binaries[name]
}

// CallCount returns how many invocations start with prefix.
func (m *Mock) CallCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Called reports whether any invocation starts with prefix.
func (m *Mock) Called(prefix string) bool {
	return m.CallCount(prefix) > 0
}
