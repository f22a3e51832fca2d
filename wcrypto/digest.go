package wcrypto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestLen is the length in bytes of a SHA-256 digest.
const DigestLen = sha256.Size

// Digest returns the 32-byte value that gets signed for payload.
//
// Round hashes are already hex-encoded SHA-256 digests,
// so a 64-character hex payload is decoded and signed directly.
// Any other payload is hashed with SHA-256 first.
func Digest(payload string) []byte {
	if IsHexDigest(payload) {
		b, _ := hex.DecodeString(payload)
		return b
	}

	sum := sha256.Sum256([]byte(payload))
	return sum[:]
}

// IsHexDigest reports whether s is a 64-character hex string.
func IsHexDigest(s string) bool {
	if len(s) != 2*DigestLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// SHA256Hex returns the lowercase hex SHA-256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SignDigest signs the digest of payload and returns the hex signature.
func SignDigest(ctx context.Context, s Signer, payload string) (string, error) {
	sig, err := s.Sign(ctx, Digest(payload))
	if err != nil {
		return "", fmt.Errorf("failed to sign digest: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyDigest reports whether sigHex is pub's signature over the digest of payload.
func VerifyDigest(payload, sigHex string, pub PubKey) bool {
	if pub == nil {
		return false
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	return pub.Verify(Digest(payload), sig)
}
