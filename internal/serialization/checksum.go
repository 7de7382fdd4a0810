package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// verifyChecksum compares the SHA-256 of a v2 data section with the digest
// stored in the fixed header.
func verifyChecksum(section []byte, stored [32]byte) error {
	if got := sha256.Sum256(section); got != stored {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch,
			hex.EncodeToString(stored[:8]), hex.EncodeToString(got[:8]))
	}
	return nil
}
