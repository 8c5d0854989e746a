// Package hasher computes content digests used to detect changed files.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ReadFile reads the whole file and returns its content together with the
// lowercase hex SHA-256 of exactly those bytes.
func ReadFile(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read consumes r, hashing the bytes as they are read
func Read(r io.Reader) ([]byte, string, error) {
	h := sha256.New()
	content, err := io.ReadAll(io.TeeReader(r, h))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read content: %w", err)
	}
	return content, hex.EncodeToString(h.Sum(nil)), nil
}
