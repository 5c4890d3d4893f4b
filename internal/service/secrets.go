package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Secret prefixes make a leaked credential identifiable in logs and scanners
// without revealing which user it belongs to.
const (
	LoginTokenPrefix = "link_"
	MCPTokenPrefix   = "mcp_"
)

const secretBytes = 32

// generateSecret returns prefix + 64 hex chars from crypto/rand. Raw secrets
// exist only in transit; every store lookup goes through store.HashSecret.
func generateSecret(prefix string) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
