package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DeriveKey computes the cache fingerprint for a request.
//
// The payload is first canonicalized: it is re-encoded through encoding/json,
// which writes map keys in sorted order, so two payloads that differ only in
// field order hash to the same key. The fingerprint is sha256 over the request
// type plus the canonical bytes, rendered as hex. It is a pure lookup token,
// not reversible and not a security boundary.
func DeriveKey(requestType string, payload map[string]any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(append([]byte(requestType), canonical...))
	return hex.EncodeToString(sum[:]), nil
}
