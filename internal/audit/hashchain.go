package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// Link is the pair of hashes stored on every event.
type Link struct {
	EventHash     string
	PrevEventHash *string
}

// Hash returns the hex SHA-256 digest of the canonical string's UTF-8 bytes.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// LinkEvent hashes the canonical form and attaches the previous hash as a
// pointer. The previous hash is not part of the digest input, so a
// consistent rewrite of a contiguous run of events is not detectable.
func LinkEvent(canonical string, prevHash *string) Link {
	return Link{
		EventHash:     Hash(canonical),
		PrevEventHash: prevHash,
	}
}
