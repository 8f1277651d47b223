package audit

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives a stable, non-reversible identifier from an access
// token so events for the same item can be correlated.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter keyed with key. An empty key gives
// plain BLAKE2b-256; keys longer than 64 bytes are rejected.
func NewFingerprinter(key string) (*Fingerprinter, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("fingerprint key must be at most %d bytes, got %d", blake2b.Size, len(key))
	}
	return &Fingerprinter{key: []byte(key)}, nil
}

// Fingerprint returns the hex BLAKE2b-256 of token, or "" for an empty token.
func (f *Fingerprinter) Fingerprint(token string) string {
	if f == nil || token == "" {
		return ""
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		// key length is checked in NewFingerprinter
		return ""
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
