package wengine_test

import (
	"testing"
	"time"

	"github.com/ssc-witness/witness/internal/wtest"
	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wengine"
	"github.com/ssc-witness/witness/wround"
	"github.com/stretchr/testify/require"
)

// newVerifier starts witness2 as a verifier of witness1's round 10 over blocks 101..105.
func newVerifier(t *testing.T) (*engineFixture, *wengine.Engine) {
	t.Helper()

	f := newEngineFixture(nil)
	e := f.Start(t, 1, wengine.WithTickInterval(time.Hour))
	return f, e
}

func requireCode(t *testing.T, want wround.ErrorCode, err error) {
	t.Helper()

	require.Error(t, err)
	ve, ok := wround.AsVerificationError(err)
	require.True(t, ok, "expected verification error, got %v", err)
	require.Equal(t, want, ve.Code, "got %v", ve)
}

func TestHandleProposal_countersigns(t *testing.T) {
	t.Parallel()

	f, e := newVerifier(t)
	hash := f.Fx.RoundHash(101, 105)

	v, err := e.HandleProposal(t.Context(), f.Fx.Proposal(0, 10, hash))
	require.NoError(t, err)
	require.Equal(t, uint64(10), v.Round)
	require.Equal(t, hash, v.RoundHash)
	require.True(t, wcrypto.VerifyDigest(hash, v.Signature, f.Fx.Signers[1].PubKey()))

	require.Equal(t, uint64(10), e.Watermark())

	// Verifying the same proposal again still succeeds and leaves the watermark alone.
	_, err = e.HandleProposal(t.Context(), f.Fx.Proposal(0, 10, hash))
	require.NoError(t, err)
	require.Equal(t, uint64(10), e.Watermark())
}

func TestHandleProposal_staleRoundAlwaysTooLow(t *testing.T) {
	t.Parallel()

	f, e := newVerifier(t)
	f.RS.SetRoundParams(f.Fx.Params(11, 106, 110, 0))
	for b := uint64(106); b <= 110; b++ {
		f.BL.PutBlockHash(b, f.Fx.BlockHash(b))
	}

	good := f.Fx.Proposal(0, 10, f.Fx.RoundHash(101, 105))

	badSig := good
	badSig.Signature = f.Fx.Sign(3, good.RoundHash)

	badHash := f.Fx.Proposal(0, 10, f.Fx.RoundHash(1, 2))

	otherLeader := f.Fx.Proposal(2, 10, good.RoundHash)

	for name, p := range map[string]wround.RoundProposal{
		"valid":        good,
		"bad sig":      badSig,
		"bad hash":     badHash,
		"other leader": otherLeader,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.HandleProposal(t.Context(), p)
			requireCode(t, wround.CodeRoundTooLow, err)
		})
	}

	require.Zero(t, e.Watermark())
}

func TestHandleProposal_wrongWitness(t *testing.T) {
	t.Parallel()

	f, e := newVerifier(t)

	// In this node's view, witness3 leads round 10.
	f.RS.SetRoundParams(f.Fx.Params(10, 101, 105, 2))

	_, err := e.HandleProposal(t.Context(), f.Fx.Proposal(0, 10, f.Fx.RoundHash(101, 105)))
	requireCode(t, wround.CodeWrongWitness, err)
	require.Zero(t, e.Watermark())
}

func TestHandleProposal_hashMismatchIsDispute(t *testing.T) {
	t.Parallel()

	f, e := newVerifier(t)
	claimed := f.Fx.RoundHash(101, 105)

	// This node ingested a different block 103.
	f.BL.PutBlockHash(103, wcrypto.SHA256Hex("forked-103"))

	v, err := e.HandleProposal(t.Context(), f.Fx.Proposal(0, 10, claimed))
	requireCode(t, wround.CodeHashMismatch, err)
	require.Empty(t, v.Signature)
	require.Zero(t, e.Watermark())

	require.Eventually(t, func() bool {
		st, err := e.Status(t.Context())
		return err == nil && st.LastDispute != nil &&
			st.LastDispute.Account == "witness1" &&
			st.LastDispute.ProposedHash == claimed &&
			st.LastDispute.ComputedHash != claimed
	}, wtest.ScaleDuration, 5*time.Millisecond)
}

func TestHandleProposal_refusals(t *testing.T) {
	t.Parallel()

	hashFor := func(f *engineFixture) string { return f.Fx.RoundHash(101, 105) }

	for _, tc := range []struct {
		name  string
		setup func(f *engineFixture) wround.RoundProposal
		want  wround.ErrorCode
	}{
		{
			name: "invalid params",
			setup: func(f *engineFixture) wround.RoundProposal {
				p := f.Fx.Proposal(0, 10, hashFor(f))
				p.RoundHash = "abc"
				return p
			},
			want: wround.CodeInvalidParams,
		},
		{
			name: "unknown witness",
			setup: func(f *engineFixture) wround.RoundProposal {
				params := f.Fx.Params(10, 101, 105, 0)
				params.CurrentWitness = "mallory"
				f.RS.SetRoundParams(params)

				p := f.Fx.Proposal(0, 10, hashFor(f))
				p.Account = "mallory"
				return p
			},
			want: wround.CodeUnknownWitness,
		},
		{
			name: "disabled witness",
			setup: func(f *engineFixture) wround.RoundProposal {
				w := f.Fx.Witnesses[0]
				w.Enabled = false
				f.RS.PutWitness(w)
				return f.Fx.Proposal(0, 10, hashFor(f))
			},
			want: wround.CodeUnknownWitness,
		},
		{
			name: "invalid signature",
			setup: func(f *engineFixture) wround.RoundProposal {
				p := f.Fx.Proposal(0, 10, hashFor(f))
				p.Signature = f.Fx.Sign(2, p.RoundHash)
				return p
			},
			want: wround.CodeInvalidSignature,
		},
		{
			name: "missing block",
			setup: func(f *engineFixture) wround.RoundProposal {
				f.BL.DeleteBlockHash(104)
				return f.Fx.Proposal(0, 10, hashFor(f))
			},
			want: wround.CodeNotReady,
		},
		{
			name: "verifier behind proposer",
			setup: func(f *engineFixture) wround.RoundProposal {
				f.RS.SetRoundParams(f.Fx.Params(9, 96, 100, 0))
				return f.Fx.Proposal(0, 10, hashFor(f))
			},
			want: wround.CodeNotReady,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f, e := newVerifier(t)
			p := tc.setup(f)

			_, err := e.HandleProposal(t.Context(), p)
			requireCode(t, tc.want, err)
			require.Zero(t, e.Watermark())
		})
	}
}

func TestHandleProposal_whileLeadingAnotherRound(t *testing.T) {
	t.Parallel()

	// witness1 leads round 10 and is collecting signatures
	// when it is asked to verify an older round it already moved past.
	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		return countersign(f.Fx, account, p), nil
	})
	f.Client.gated = map[string]bool{"witness2": true, "witness3": true, "witness4": true}

	e := f.Start(t, 0)
	_ = wtest.ReceiveSoon(t, f.Client.calls)

	_, err := e.HandleProposal(t.Context(), f.Fx.Proposal(1, 9, f.Fx.RoundHash(96, 100)))
	requireCode(t, wround.CodeRoundTooLow, err)

	st, err := e.Status(t.Context())
	require.NoError(t, err)
	require.NotNil(t, st.Proposal)
	require.Equal(t, uint64(10), st.Proposal.Round)
}
