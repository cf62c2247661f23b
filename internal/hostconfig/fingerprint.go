package hostconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Fingerprint computes a SHA-256 hash of a host config document.
func Fingerprint(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("host config is empty")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
