package envelope

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// DecodeHex decodes a hex barcode payload, ignoring whitespace
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex: %w", err)
	}
	return b, nil
}

// DecodeBase64 decodes a standard or URL-safe base64 barcode payload
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if b, urlErr := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); urlErr == nil {
		return b, nil
	}
	return nil, fmt.Errorf("failed to decode base64: %w", err)
}

// ReadFile reads a binary barcode payload
func ReadFile(filePath string) ([]byte, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return b, nil
}

// ComputeHash computes the SHA256 hash of a signed region
func ComputeHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
