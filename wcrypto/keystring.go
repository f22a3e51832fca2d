package wcrypto

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // The backing chain's key checksum is defined over RIPEMD-160.
)

// PubKeyPrefix is the address prefix of backing-chain public keys.
const PubKeyPrefix = "STM"

const (
	checksumLen = 4
	wifVersion  = 0x80
)

var (
	ErrBadKeyPrefix   = errors.New("public key missing " + PubKeyPrefix + " prefix")
	ErrBadKeyChecksum = errors.New("key checksum mismatch")
)

// ParsePubKey parses a backing-chain public key string:
// the prefix followed by base58(compressed key || ripemd160(compressed key)[:4]).
func ParsePubKey(s string) (PubKey, error) {
	rest, ok := strings.CutPrefix(s, PubKeyPrefix)
	if !ok {
		return nil, ErrBadKeyPrefix
	}

	raw, err := base58.Decode(rest)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) <= checksumLen {
		return nil, fmt.Errorf("public key too short: %d bytes", len(raw))
	}

	key, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(ripemd160Sum(key)[:checksumLen], sum) {
		return nil, ErrBadKeyChecksum
	}

	return NewSecp256k1PubKey(key)
}

// FormatPubKey is the inverse of ParsePubKey.
func FormatPubKey(k PubKey) string {
	b := k.PubKeyBytes()
	return PubKeyPrefix + base58.Encode(append(b, ripemd160Sum(b)[:checksumLen]...))
}

// ParsePrivateKeyWIF parses a wallet-import-format private key
// and returns a signer for it.
func ParsePrivateKeyWIF(wif string) (Secp256k1Signer, error) {
	raw, err := base58.Decode(wif)
	if err != nil {
		return Secp256k1Signer{}, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(raw) != 1+secp256k1.PrivKeyBytesLen+checksumLen {
		return Secp256k1Signer{}, fmt.Errorf("private key has unexpected length %d", len(raw))
	}
	if raw[0] != wifVersion {
		return Secp256k1Signer{}, fmt.Errorf("private key has unexpected version byte %#x", raw[0])
	}

	payload, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(doubleSHA256(payload)[:checksumLen], sum) {
		return Secp256k1Signer{}, ErrBadKeyChecksum
	}

	return NewSecp256k1Signer(secp256k1.PrivKeyFromBytes(payload[1:])), nil
}

// FormatPrivateKeyWIF encodes priv in wallet import format.
func FormatPrivateKeyWIF(priv *secp256k1.PrivateKey) string {
	payload := append([]byte{wifVersion}, priv.Serialize()...)
	return base58.Encode(append(payload, doubleSHA256(payload)[:checksumLen]...))
}

func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	_, _ = h.Write(b)
	return h.Sum(nil)
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
