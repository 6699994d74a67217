// Package id generates prefixed unique identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// idLength keeps IDs short enough to embed in QR payloads while leaving
// ample collision margin for a single event's population.
const idLength = 21

// Generate creates a prefixed NanoID, e.g. "usr-V1StGXR8_Z5jdHi6B-myT".
// The prefix makes IDs self-describing in logs and database dumps.
func Generate(prefix string) (string, error) {
	suffix, err := gonanoid.New(idLength)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + "-" + suffix, nil
}

// MustGenerate is Generate for initialization paths where entropy failure
// should crash the process.
func MustGenerate(prefix string) string {
	generated, err := Generate(prefix)
	if err != nil {
		panic(err)
	}
	return generated
}
