// Package wcrypto contains the key types witnesses use
// to sign and verify round hashes.
//
// Keys are secp256k1, the same curve the backing chain uses for account keys,
// so that a witness's registered signing key is an ordinary chain public key.
package wcrypto

import "context"

type PubKey interface {
	PubKeyBytes() []byte

	Equal(other PubKey) bool

	// Verify reports whether sig is a valid signature over the 32-byte digest.
	Verify(digest, sig []byte) bool

	// String returns the key in its backing-chain text form.
	String() string
}

// Signer produces signatures over digests.
// A node only has a Signer when it runs as an enabled witness.
type Signer interface {
	PubKey() PubKey

	Sign(ctx context.Context, digest []byte) ([]byte, error)
}
