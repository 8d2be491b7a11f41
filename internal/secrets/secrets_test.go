package secrets

import (
	"encoding/hex"
	"testing"
)

func TestGenerateLength(t *testing.T) {
	tests := []struct {
		bits   int
		hexLen int
		rawLen int
	}{
		{128, 32, 16},
		{256, 64, 32},
		{8, 2, 1},
	}
	for _, tt := range tests {
		s, err := Generate(tt.bits)
		if err != nil {
			t.Fatalf("Generate(%d): %v", tt.bits, err)
		}
		if len(s) != tt.hexLen {
			t.Errorf("Generate(%d) hex length = %d, want %d", tt.bits, len(s), tt.hexLen)
		}
		raw, err := hex.DecodeString(s)
		if err != nil {
			t.Errorf("Generate(%d) produced non-hex output %q: %v", tt.bits, s, err)
		}
		if len(raw) != tt.rawLen {
			t.Errorf("Generate(%d) raw length = %d, want %d", tt.bits, len(raw), tt.rawLen)
		}
	}
}

func TestGenerateInvalidSize(t *testing.T) {
	for _, bits := range []int{0, -8, 7, 129} {
		if _, err := Generate(bits); err == nil {
			t.Errorf("Generate(%d) succeeded, want error", bits)
		}
	}
}

func TestGenerateNeverRepeats(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s, err := Generate(128)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[s] {
			t.Fatalf("duplicate secret after %d draws: %s", i, s)
		}
		seen[s] = true
	}
}
