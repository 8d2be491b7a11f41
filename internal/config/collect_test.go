package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestAskReturnsInput(t *testing.T) {
	c := NewCollector(strings.NewReader("example.com\n"), &bytes.Buffer{})
	v, err := c.Ask("Domain", "fallback.test")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if v != "example.com" {
		t.Errorf("Ask = %q, want example.com", v)
	}
}

func TestAskFallsBackToDefault(t *testing.T) {
	c := NewCollector(strings.NewReader("\n"), &bytes.Buffer{})
	v, err := c.Ask("Domain", "fallback.test")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if v != "fallback.test" {
		t.Errorf("Ask = %q, want fallback.test", v)
	}
}

func TestAskRequiredRepromptsUntilNonEmpty(t *testing.T) {
	c := NewCollector(strings.NewReader("\n\nvalue\n"), &bytes.Buffer{})
	v, err := c.AskRequired("Domain")
	if err != nil {
		t.Fatalf("AskRequired: %v", err)
	}
	if v != "value" {
		t.Errorf("AskRequired = %q, want value", v)
	}
}

func TestAskTrimsWhitespace(t *testing.T) {
	c := NewCollector(strings.NewReader("  spaced.test  \n"), &bytes.Buffer{})
	v, err := c.Ask("Domain", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if v != "spaced.test" {
		t.Errorf("Ask = %q, want spaced.test", v)
	}
}

func TestAnswersCollectSkipsPrompts(t *testing.T) {
	a := &Answers{
		Domain:     "example.test",
		AdminEmail: "a@example.test",
		DBPassword: "p",
		Supervisor: SupervisorPM2,
	}
	// No input available: every prompt would fail, so none may run.
	c := NewCollector(strings.NewReader(""), &bytes.Buffer{})
	domain, email, pw, sup, err := a.Collect(c)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if domain != "example.test" || email != "a@example.test" || pw != "p" || sup != SupervisorPM2 {
		t.Errorf("Collect = %q %q %q %q", domain, email, pw, sup)
	}
}

func TestAnswersCollectPromptsForMissing(t *testing.T) {
	a := &Answers{Domain: "example.test", DBPassword: "p"}
	out := &bytes.Buffer{}
	// Email default accepted, supervisor default accepted.
	c := NewCollector(strings.NewReader("\n\n"), out)
	_, email, _, sup, err := a.Collect(c)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if email != "admin@example.test" {
		t.Errorf("email = %q, want admin@example.test", email)
	}
	if sup != SupervisorSystemd {
		t.Errorf("supervisor = %q, want systemd default", sup)
	}
}
