package wengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ssc-witness/witness/internal/wchan"
	"github.com/ssc-witness/witness/wbroadcast"
	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wengine/internal/wsched"
	"github.com/ssc-witness/witness/wmetrics"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore"
)

// RoundClient sends a proposal to the witness whose RPC endpoint is at baseURL.
// It is satisfied by [*wrpc.Client].
type RoundClient interface {
	ProposeRoundHash(ctx context.Context, baseURL string, p wround.RoundProposal) (wround.RoundVerification, error)
}

// Broadcaster submits finalized rounds.
// It is satisfied by [*wbroadcast.Broadcaster].
type Broadcaster interface {
	Broadcast(wround.FinalizedRound) wbroadcast.BroadcastResult
}

// Engine runs round consensus for one witness.
//
// Engine methods are safe to call concurrently.
type Engine struct {
	log *slog.Logger

	account string
	signer  wcrypto.Signer

	rs          wstore.RoundStateStore
	bl          wstore.BlockLedger
	client      RoundClient
	broadcaster Broadcaster

	tickInterval time.Duration
	retryDelay   time.Duration
	required     int

	metrics *wmetrics.Collector

	// Advanced only by the kernel; read anywhere.
	watermark *wround.Watermark

	watermarkRequests chan watermarkRequest
	statusRequests    chan statusRequest
	disputes          chan Dispute
	proposalResults   chan proposalResult

	// Owned by the kernel goroutine.
	state             State
	params            wround.RoundParams
	lastProposedRound uint64
	active            *activeRound
	retries           wsched.Queue[retryTask]
	lastDispute       *Dispute

	// Tracks outbound proposal goroutines.
	sends sync.WaitGroup

	done chan struct{}
}

// New returns a started Engine.
// The engine stops when ctx is cancelled; call Wait to block until it has stopped.
func New(ctx context.Context, log *slog.Logger, opts ...Opt) (*Engine, error) {
	e := &Engine{
		log: log,

		tickInterval: 3 * time.Second,
		retryDelay:   5 * time.Second,
		required:     wround.DefaultRequiredSignatures,

		// Unbuffered: callers block on the response anyway.
		watermarkRequests: make(chan watermarkRequest),

		// 1-buffered so the kernel never waits on a slow status reader.
		statusRequests: make(chan statusRequest, 1),

		// Arbitrarily sized to absorb a burst from one fan-out.
		disputes:        make(chan Dispute, 4),
		proposalResults: make(chan proposalResult, 16),

		done: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.watermark == nil {
		e.watermark = new(wround.Watermark)
	}

	if err := e.validateSettings(); err != nil {
		return nil, fmt.Errorf("invalid engine settings: %w", err)
	}

	go e.kernel(ctx)

	return e, nil
}

// Wait blocks until the kernel and every outbound proposal have stopped.
func (e *Engine) Wait() {
	<-e.done
	e.sends.Wait()
}

// Watermark returns the highest round this node has verified or finalized.
func (e *Engine) Watermark() uint64 {
	return e.watermark.Load()
}

// Status returns a snapshot of the engine's state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	req := statusRequest{Resp: make(chan Status, 1)}
	st, ok := wchan.ReqResp(ctx, e.log, e.statusRequests, req, req.Resp, "status")
	if !ok {
		return Status{}, fmt.Errorf("failed to get engine status: %w", context.Cause(ctx))
	}
	return st, nil
}

type watermarkRequest struct {
	Round uint64

	// Whether the watermark advanced.
	Resp chan bool
}

type statusRequest struct {
	Resp chan Status
}
