package wcrypto

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// CompactSignatureLen is the length of a recoverable compact signature:
// one recovery byte followed by R and S.
const CompactSignatureLen = 65

type Secp256k1PubKey struct {
	k *secp256k1.PublicKey
}

// NewSecp256k1PubKey parses a compressed or uncompressed public key.
func NewSecp256k1PubKey(b []byte) (PubKey, error) {
	k, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secp256k1 public key: %w", err)
	}
	return Secp256k1PubKey{k: k}, nil
}

// PubKeyBytes returns the 33-byte compressed encoding.
func (e Secp256k1PubKey) PubKeyBytes() []byte {
	return e.k.SerializeCompressed()
}

func (e Secp256k1PubKey) Verify(digest, sig []byte) bool {
	if len(sig) != CompactSignatureLen || len(digest) != DigestLen {
		return false
	}

	recovered, _, err := ecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return false
	}

	return recovered.IsEqual(e.k)
}

func (e Secp256k1PubKey) Equal(other PubKey) bool {
	o, ok := other.(Secp256k1PubKey)
	if !ok {
		return false
	}

	return e.k.IsEqual(o.k)
}

func (e Secp256k1PubKey) String() string {
	return FormatPubKey(e)
}

type Secp256k1Signer struct {
	priv *secp256k1.PrivateKey
	pub  Secp256k1PubKey
}

func NewSecp256k1Signer(priv *secp256k1.PrivateKey) Secp256k1Signer {
	return Secp256k1Signer{
		priv: priv,
		pub:  Secp256k1PubKey{k: priv.PubKey()},
	}
}

// GenerateSecp256k1Signer returns a signer for a fresh random key.
func GenerateSecp256k1Signer() (Secp256k1Signer, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return Secp256k1Signer{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	return NewSecp256k1Signer(priv), nil
}

func (s Secp256k1Signer) PubKey() PubKey {
	return s.pub
}

// Sign returns a compact recoverable signature over digest,
// which must already be a 32-byte hash.
func (s Secp256k1Signer) Sign(_ context.Context, digest []byte) ([]byte, error) {
	if len(digest) != DigestLen {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", DigestLen, len(digest))
	}
	return ecdsa.SignCompact(s.priv, digest, true), nil
}

// WIF returns the private key in wallet import format.
func (s Secp256k1Signer) WIF() string {
	return FormatPrivateKeyWIF(s.priv)
}
