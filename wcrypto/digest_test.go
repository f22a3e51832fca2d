package wcrypto_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wcrypto/wcryptotest"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	t.Parallel()

	t.Run("hex digests are used as-is", func(t *testing.T) {
		h := wcrypto.SHA256Hex("abc")
		require.True(t, wcrypto.IsHexDigest(h))
		require.Equal(t, h, hex.EncodeToString(wcrypto.Digest(h)))
	})

	t.Run("other payloads are hashed", func(t *testing.T) {
		require.Equal(t, wcrypto.SHA256Hex("abc"), hex.EncodeToString(wcrypto.Digest("abc")))
	})

	t.Run("wrong length hex is hashed", func(t *testing.T) {
		require.False(t, wcrypto.IsHexDigest("abcd"))
		require.Len(t, wcrypto.Digest("abcd"), wcrypto.DigestLen)
	})
}

func TestSignVerifyDigest(t *testing.T) {
	t.Parallel()

	signers := wcryptotest.DeterministicSigners(2)
	roundHash := wcrypto.SHA256Hex("round 10")

	sig, err := wcrypto.SignDigest(context.Background(), signers[0], roundHash)
	require.NoError(t, err)

	require.True(t, wcrypto.VerifyDigest(roundHash, sig, signers[0].PubKey()))
	require.False(t, wcrypto.VerifyDigest(roundHash, sig, signers[1].PubKey()))
	require.False(t, wcrypto.VerifyDigest(wcrypto.SHA256Hex("round 11"), sig, signers[0].PubKey()))
	require.False(t, wcrypto.VerifyDigest(roundHash, "zz", signers[0].PubKey()))
	require.False(t, wcrypto.VerifyDigest(roundHash, sig, nil))
}
