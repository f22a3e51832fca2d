// Package wcryptotest contains deterministic keys for tests.
package wcryptotest

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ssc-witness/witness/wcrypto"
)

var (
	mu      sync.Mutex
	signers []wcrypto.Secp256k1Signer
)

// DeterministicSigners returns n secp256k1 signers whose keys
// are derived from their index, so keys are stable across test runs.
// Generated keys are cached.
func DeterministicSigners(n int) []wcrypto.Secp256k1Signer {
	mu.Lock()
	defer mu.Unlock()

	for i := len(signers); i < n; i++ {
		seed := sha256.Sum256([]byte(fmt.Sprintf("witness-test-key-%d", i)))
		signers = append(signers, wcrypto.NewSecp256k1Signer(secp256k1.PrivKeyFromBytes(seed[:])))
	}

	out := make([]wcrypto.Secp256k1Signer, n)
	copy(out, signers[:n])
	return out
}

// DeterministicPubKeys returns the public keys of DeterministicSigners(n).
func DeterministicPubKeys(n int) []wcrypto.PubKey {
	signers := DeterministicSigners(n)
	out := make([]wcrypto.PubKey, n)
	for i, s := range signers {
		out[i] = s.PubKey()
	}
	return out
}
