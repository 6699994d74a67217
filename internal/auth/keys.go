// Package auth provides password hashing and PASETO session tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PASETO v4.local needs a 256-bit symmetric key.
	keyLength    = 32
	keyHexLength = 64

	keyFileName = "auth.key"
)

// LoadOrGenerateKey returns the access token key, creating and persisting
// one on first run. The key lives hex-encoded in <dataPath>/auth.key so
// tokens survive server restarts.
func LoadOrGenerateKey(dataPath string) ([]byte, error) {
	keyPath := filepath.Join(dataPath, keyFileName)

	if raw, err := os.ReadFile(keyPath); err == nil {
		return decodeKey(strings.TrimSpace(string(raw)))
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate auth key: %w", err)
	}

	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("persist auth key: %w", err)
	}

	return key, nil
}

// decodeKey parses a hex key and enforces the PASETO length requirement.
func decodeKey(keyHex string) ([]byte, error) {
	if len(keyHex) != keyHexLength {
		return nil, fmt.Errorf("auth key must be %d hex characters, got %d", keyHexLength, len(keyHex))
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("auth key is not valid hex: %w", err)
	}
	return key, nil
}
