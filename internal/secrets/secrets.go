package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Generate returns bits of cryptographically secure randomness as a
// lowercase hex string. bits must be a positive multiple of 8.
// There is no fallback source: if the system CSPRNG fails, so does the run.
func Generate(bits int) (string, error) {
	if bits <= 0 || bits%8 != 0 {
		return "", fmt.Errorf("secret size must be a positive multiple of 8, got %d", bits)
	}
	buf := make([]byte, bits/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read secure random source: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
