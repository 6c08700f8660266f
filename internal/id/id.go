// Package id generates identifiers for alternatives, mirrors and scratch files.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the entities this server owns.
const (
	PrefixAlternative = "alt"
	PrefixMirror      = "mir"
)

// tokenAlphabet avoids '-' and '_' so tokens are safe anywhere in a file name,
// including as a leading character.
const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "alt-V1StGXR8_Z5jdHi6B-myT").
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewAlternativeID returns a fresh language alternative ID.
func NewAlternativeID() string {
	return MustGenerate(PrefixAlternative)
}

// NewMirrorID returns a fresh library mirror ID.
func NewMirrorID() string {
	return MustGenerate(PrefixMirror)
}

// Token returns a random lowercase alphanumeric string of the given length,
// suitable for scratch file names.
func Token(size int) (string, error) {
	tok, err := gonanoid.Generate(tokenAlphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return tok, nil
}
