package x402

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewNonce draws 32 cryptographically-random bytes from the host CSPRNG and
// hex-encodes them with a "0x" prefix, per §4.1.
func NewNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}
