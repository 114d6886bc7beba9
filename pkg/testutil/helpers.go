package testutil

import (
	_ "crypto/sha256"

	"github.com/opencontainers/go-digest"
)

// Checksum returns the digest recorded by the exporter for content
func Checksum(content string) string {
	return digest.FromString(content).String()
}
