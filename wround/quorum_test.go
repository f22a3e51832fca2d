package wround_test

import (
	"testing"

	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wround/wroundtest"
	"github.com/stretchr/testify/require"
)

func TestSignatureCollection_Quorum(t *testing.T) {
	t.Parallel()

	fx := wroundtest.NewFixture(4)
	roundHash := fx.RoundHash(101, 105)

	c, err := wround.NewSignatureCollection(roundHash, fx.Witnesses, 3)
	require.NoError(t, err)

	res, q := c.AddSignature("witness1", fx.Sign(0, roundHash))
	require.Equal(t, wround.AddSignatureAccepted, res)
	require.False(t, q)

	res, q = c.AddSignature("witness2", fx.Sign(1, roundHash))
	require.Equal(t, wround.AddSignatureAccepted, res)
	require.False(t, q, "quorum must not be reached before the threshold")
	require.Equal(t, 2, c.Count())

	res, q = c.AddSignature("witness3", fx.Sign(2, roundHash))
	require.Equal(t, wround.AddSignatureAccepted, res)
	require.True(t, q)
	require.Equal(t, 3, c.Count())

	// Late signer still accepted; quorum stays reached.
	res, q = c.AddSignature("witness4", fx.Sign(3, roundHash))
	require.Equal(t, wround.AddSignatureAccepted, res)
	require.True(t, q)

	sigs := c.Signatures()
	require.Len(t, sigs, 4)
	require.Equal(t, []string{"witness1", "witness2", "witness3", "witness4"}, []string{
		sigs[0].Account, sigs[1].Account, sigs[2].Account, sigs[3].Account,
	})
}

func TestSignatureCollection_DuplicateIsNoOp(t *testing.T) {
	t.Parallel()

	fx := wroundtest.NewFixture(4)
	roundHash := fx.RoundHash(1, 5)

	c, err := wround.NewSignatureCollection(roundHash, fx.Witnesses, 3)
	require.NoError(t, err)

	sig := fx.Sign(1, roundHash)
	res, q := c.AddSignature("witness2", sig)
	require.Equal(t, wround.AddSignatureAccepted, res)
	require.False(t, q)

	for range 3 {
		res, q = c.AddSignature("witness2", sig)
		require.Equal(t, wround.AddSignatureDuplicate, res)
		require.False(t, q)
		require.Equal(t, 1, c.Count())
	}

	require.Len(t, c.Signatures(), 1)
	require.True(t, c.HasSigned("witness2"))
	require.False(t, c.HasSigned("witness3"))
}

func TestSignatureCollection_Rejections(t *testing.T) {
	t.Parallel()

	fx := wroundtest.NewFixture(5)
	roundHash := fx.RoundHash(1, 5)

	// Only the first four are scheduled.
	c, err := wround.NewSignatureCollection(roundHash, fx.Witnesses[:4], 3)
	require.NoError(t, err)

	res, _ := c.AddSignature("witness5", fx.Sign(4, roundHash))
	require.Equal(t, wround.AddSignatureNotScheduled, res)

	// witness2 signing with witness3's key.
	res, _ = c.AddSignature("witness2", fx.Sign(2, roundHash))
	require.Equal(t, wround.AddSignatureInvalid, res)

	// Signature over a different hash.
	res, _ = c.AddSignature("witness2", fx.Sign(1, fx.RoundHash(1, 6)))
	require.Equal(t, wround.AddSignatureInvalid, res)

	require.Zero(t, c.Count())
}

func TestNewSignatureCollection_ScheduleTooSmall(t *testing.T) {
	t.Parallel()

	fx := wroundtest.NewFixture(2)
	_, err := wround.NewSignatureCollection(fx.RoundHash(1, 1), fx.Witnesses, 3)
	require.ErrorIs(t, err, wround.ErrInsufficientSchedule)

	dup := append(fx.Witnesses, fx.Witnesses[0])
	_, err = wround.NewSignatureCollection(fx.RoundHash(1, 1), dup, 3)
	require.Error(t, err)
}
