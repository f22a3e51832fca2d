package wengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ssc-witness/witness/internal/wtest"
	"github.com/ssc-witness/witness/wbroadcast"
	"github.com/ssc-witness/witness/wengine"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wround/wroundtest"
	"github.com/ssc-witness/witness/wstore/wmemstore"
	"github.com/stretchr/testify/require"
)

type respondFunc func(account string, call int, p wround.RoundProposal) (wround.RoundVerification, error)

// fakeRoundClient answers proposals on behalf of the fixture's witnesses.
type fakeRoundClient struct {
	fx *wroundtest.Fixture

	respond respondFunc

	// Calls to accounts in gated block until gate is closed.
	gated map[string]bool
	gate  chan struct{}

	// Account of every call, in call order.
	calls chan string

	mu     sync.Mutex
	counts map[string]int
}

func newFakeRoundClient(fx *wroundtest.Fixture, respond respondFunc) *fakeRoundClient {
	return &fakeRoundClient{
		fx:      fx,
		respond: respond,
		gate:    make(chan struct{}),
		calls:   make(chan string, 64),
		counts:  make(map[string]int),
	}
}

func (c *fakeRoundClient) ProposeRoundHash(ctx context.Context, baseURL string, p wround.RoundProposal) (wround.RoundVerification, error) {
	account := ""
	for _, w := range c.fx.Witnesses {
		if w.Address() == baseURL {
			account = w.Account
		}
	}
	if account == "" {
		return wround.RoundVerification{}, errors.New("no such host")
	}

	c.mu.Lock()
	c.counts[account]++
	n := c.counts[account]
	c.mu.Unlock()

	c.calls <- account

	if c.gated[account] {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return wround.RoundVerification{}, context.Cause(ctx)
		}
	}

	return c.respond(account, n, p)
}

func (c *fakeRoundClient) Count(account string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[account]
}

// countersign answers as the named fixture witness would on success.
func countersign(fx *wroundtest.Fixture, account string, p wround.RoundProposal) wround.RoundVerification {
	for i, w := range fx.Witnesses {
		if w.Account == account {
			return wround.RoundVerification{
				Round:     p.Round,
				RoundHash: p.RoundHash,
				Signature: fx.Sign(i, p.RoundHash),
			}
		}
	}
	panic("unknown account " + account)
}

type fakeBroadcaster struct {
	ch chan wround.FinalizedRound
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{ch: make(chan wround.FinalizedRound, 4)}
}

func (b *fakeBroadcaster) Broadcast(fr wround.FinalizedRound) wbroadcast.BroadcastResult {
	b.ch <- fr
	return wbroadcast.BroadcastStarted
}

type engineFixture struct {
	Fx *wroundtest.Fixture

	RS *wmemstore.RoundStateStore
	BL *wmemstore.BlockLedger

	Client      *fakeRoundClient
	Broadcaster *fakeBroadcaster
}

// newEngineFixture returns four witnesses scheduled for round 10 over blocks 101..105,
// led by witness1.
func newEngineFixture(respond respondFunc) *engineFixture {
	fx := wroundtest.NewFixture(4)
	rs, bl := fx.NewStores(fx.Params(10, 101, 105, 0), 105)

	return &engineFixture{
		Fx: fx,
		RS: rs,
		BL: bl,

		Client:      newFakeRoundClient(fx, respond),
		Broadcaster: newFakeBroadcaster(),
	}
}

// Start starts an engine acting as the fixture witness at idx.
func (f *engineFixture) Start(t *testing.T, idx int, opts ...wengine.Opt) *wengine.Engine {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	allOpts := []wengine.Opt{
		wengine.WithIdentity(f.Fx.Witnesses[idx].Account, f.Fx.Signers[idx]),
		wengine.WithRoundStateStore(f.RS),
		wengine.WithBlockLedger(f.BL),
		wengine.WithRoundClient(f.Client),
		wengine.WithBroadcaster(f.Broadcaster),
		wengine.WithTickInterval(10 * time.Millisecond),
		wengine.WithRetryDelay(20 * time.Millisecond),
	}
	allOpts = append(allOpts, opts...)

	e, err := wengine.New(ctx, wtest.NewLogger(t), allOpts...)
	if err != nil {
		cancel()
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		cancel()
		e.Wait()
	})

	return e
}

func signers(fr wround.FinalizedRound) []string {
	out := make([]string, len(fr.Signatures))
	for i, s := range fr.Signatures {
		out[i] = s.Account
	}
	return out
}

func TestEngine_finalizesOnQuorum(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		return countersign(f.Fx, account, p), nil
	})
	f.Client.gated = map[string]bool{"witness3": true, "witness4": true}

	e := f.Start(t, 0)

	// Only witness2 answers until witness3 and witness4 are released together.
	require.Eventually(t, func() bool {
		st, err := e.Status(t.Context())
		return err == nil && st.Proposal != nil && len(st.Proposal.Signers) == 2
	}, wtest.ScaleDuration, 5*time.Millisecond)
	wtest.NotSending(t, f.Broadcaster.ch)

	close(f.Client.gate)

	fr := wtest.ReceiveSoon(t, f.Broadcaster.ch)
	require.Equal(t, uint64(10), fr.Round)
	require.Equal(t, f.Fx.RoundHash(101, 105), fr.RoundHash)
	require.Len(t, fr.Signatures, 3)
	require.Equal(t, "witness1", fr.Signatures[0].Account)
	require.Equal(t, "witness2", fr.Signatures[1].Account)

	require.Equal(t, uint64(10), e.Watermark())

	// The fourth response arrives after quorum and is ignored.
	wtest.NotSending(t, f.Broadcaster.ch)

	st, err := e.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, wengine.StateIdle, st.State)
	require.Nil(t, st.Proposal)
	require.Equal(t, uint64(10), st.LastProposedRound)
	require.Equal(t, uint64(10), st.LastVerifiedRound)

	// Each peer was asked exactly once.
	for _, a := range []string{"witness2", "witness3", "witness4"} {
		require.Equal(t, 1, f.Client.Count(a), a)
	}
}

func TestEngine_waitsForRoundBlocks(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		return countersign(f.Fx, account, p), nil
	})
	f.BL.DeleteBlockHash(105)

	e := f.Start(t, 0)

	wtest.NotSending(t, f.Client.calls)

	st, err := e.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, wengine.StateIdle, st.State)
	require.Zero(t, st.LastProposedRound)

	f.BL.PutBlockHash(105, f.Fx.BlockHash(105))

	fr := wtest.ReceiveSoon(t, f.Broadcaster.ch)
	require.Equal(t, f.Fx.RoundHash(101, 105), fr.RoundHash)
}

func TestEngine_retriesOnceWhenViewMayConverge(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, call int, p wround.RoundProposal) (wround.RoundVerification, error) {
		switch account {
		case "witness2":
			if call == 1 {
				return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeRoundTooLow, "behind")
			}
		case "witness4":
			return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeHashMismatch, "fork")
		}
		return countersign(f.Fx, account, p), nil
	})

	e := f.Start(t, 0)

	fr := wtest.ReceiveSoon(t, f.Broadcaster.ch)
	require.Equal(t, []string{"witness1", "witness3", "witness2"}, signers(fr))
	require.Equal(t, 2, f.Client.Count("witness2"))
	require.Equal(t, 1, f.Client.Count("witness4"), "hash mismatches are not retried")

	var st wengine.Status
	require.Eventually(t, func() bool {
		var err error
		st, err = e.Status(t.Context())
		return err == nil && st.LastDispute != nil
	}, wtest.ScaleDuration, 5*time.Millisecond)
	require.Equal(t, "witness4", st.LastDispute.Account)
	require.Equal(t, uint64(10), st.LastDispute.Round)
}

func TestEngine_retriesAtMostOnce(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		switch account {
		case "witness2":
			return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeRoundTooLow, "behind")
		case "witness4":
			return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeWrongWitness, "not you")
		}
		return countersign(f.Fx, account, p), nil
	})

	e := f.Start(t, 0)

	require.Eventually(t, func() bool {
		return f.Client.Count("witness2") == 2 && f.Client.Count("witness4") == 2
	}, wtest.ScaleDuration, 5*time.Millisecond)

	// Several retry delays pass with no further attempts.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, f.Client.Count("witness2"))
	require.Equal(t, 2, f.Client.Count("witness4"))
	require.Equal(t, 1, f.Client.Count("witness3"))

	wtest.NotSending(t, f.Broadcaster.ch)

	st, err := e.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, wengine.StateCollectingSignatures, st.State)
	require.NotNil(t, st.Proposal)
	require.Equal(t, []string{"witness1", "witness3"}, st.Proposal.Signers)
}

func TestEngine_noRetryWhenRoundMovedOn(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		if account == "witness2" {
			return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeRoundTooLow, "behind")
		}
		return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeUnknownWitness, "who")
	})

	f.Start(t, 0, wengine.WithRetryDelay(200*time.Millisecond))

	require.Eventually(t, func() bool {
		return f.Client.Count("witness2") == 1
	}, wtest.ScaleDuration, 5*time.Millisecond)

	// Another witness takes over before the retry is due.
	f.RS.SetRoundParams(f.Fx.Params(11, 106, 110, 1))

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, f.Client.Count("witness2"))
}

func TestEngine_abandonsRoundWhenParamsAdvance(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		return countersign(f.Fx, account, p), nil
	})
	f.Client.gated = map[string]bool{"witness2": true, "witness3": true, "witness4": true}

	e := f.Start(t, 0)

	for range 3 {
		_ = wtest.ReceiveSoon(t, f.Client.calls)
	}

	f.RS.SetRoundParams(f.Fx.Params(11, 106, 110, 1))

	require.Eventually(t, func() bool {
		st, err := e.Status(t.Context())
		return err == nil && st.Round == 11 && st.Proposal == nil && st.State == wengine.StateIdle
	}, wtest.ScaleDuration, 5*time.Millisecond)

	// Late counter-signatures for round 10 are ignored.
	close(f.Client.gate)
	wtest.NotSending(t, f.Broadcaster.ch)
	require.Zero(t, e.Watermark())
}

func TestEngine_resendsToUnreachableWitnessOnTick(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, call int, p wround.RoundProposal) (wround.RoundVerification, error) {
		switch account {
		case "witness2":
			if call == 1 {
				return wround.RoundVerification{}, errors.New("connection refused")
			}
		case "witness4":
			return wround.RoundVerification{}, wround.NewVerificationError(wround.CodeInvalidSignature, "bad sig")
		}
		return countersign(f.Fx, account, p), nil
	})

	f.Start(t, 0)

	fr := wtest.ReceiveSoon(t, f.Broadcaster.ch)
	require.Equal(t, []string{"witness1", "witness3", "witness2"}, signers(fr))
	require.Equal(t, 2, f.Client.Count("witness2"))
	require.Equal(t, 1, f.Client.Count("witness4"))
}

func TestEngine_skipsDisabledWitnesses(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		return countersign(f.Fx, account, p), nil
	})

	w4 := f.Fx.Witnesses[3]
	w4.Enabled = false
	f.RS.PutWitness(w4)

	f.Start(t, 0)

	fr := wtest.ReceiveSoon(t, f.Broadcaster.ch)
	require.Len(t, fr.Signatures, 3)
	require.Zero(t, f.Client.Count("witness4"))
}

func TestEngine_followerDoesNotPropose(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(func(string, int, wround.RoundProposal) (wround.RoundVerification, error) {
		return wround.RoundVerification{}, errors.New("unexpected call")
	})

	e := f.Start(t, 1)

	wtest.NotSending(t, f.Client.calls)

	st, err := e.Status(t.Context())
	require.NoError(t, err)
	require.Equal(t, "witness2", st.Account)
	require.Equal(t, "witness1", st.CurrentWitness)
	require.Zero(t, st.LastProposedRound)
}

func TestEngine_doesNotReproposeFinalizedRound(t *testing.T) {
	t.Parallel()

	var f *engineFixture
	f = newEngineFixture(func(account string, _ int, p wround.RoundProposal) (wround.RoundVerification, error) {
		return countersign(f.Fx, account, p), nil
	})

	f.Start(t, 0)

	_ = wtest.ReceiveSoon(t, f.Broadcaster.ch)
	for range 3 {
		_ = wtest.ReceiveSoon(t, f.Client.calls)
	}

	// Params still say round 10 with this node as witness.
	wtest.NotSending(t, f.Client.calls)
	wtest.NotSending(t, f.Broadcaster.ch)
}

func TestNew_requiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := wengine.New(t.Context(), wtest.NewLogger(t))
	require.Error(t, err)

	fx := wroundtest.NewFixture(1)
	_, err = wengine.New(
		t.Context(), wtest.NewLogger(t),
		wengine.WithIdentity(fx.Witnesses[0].Account, fx.Signers[0]),
	)
	require.ErrorContains(t, err, "round state store")
}
