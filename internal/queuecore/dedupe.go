// Copyright 2025 James Ross
package queuecore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// payloadDigest returns the hex sha256 of the canonical JSON encoding of
// payload. encoding/json.Marshal on a map[string]interface{} already sorts
// keys lexicographically and emits no whitespace, which is exactly the
// canonical form the spec calls for.
func payloadDigest(payload map[string]interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
