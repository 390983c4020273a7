package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
)

var sha256HexRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FileSHA256 returns the lowercase hex sha256 of the file at path
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BytesSHA256 returns the lowercase hex sha256 of b
func BytesSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsSHA256Hex reports whether s looks like a lowercase hex sha256 digest
func IsSHA256Hex(s string) bool {
	return sha256HexRegex.MatchString(s)
}
