package wbroadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/ssc-witness/witness/wmetrics"
	"github.com/ssc-witness/witness/wround"
)

// BroadcastResult is the immediate outcome of a call to [*Broadcaster.Broadcast].
type BroadcastResult uint8

const (
	_ BroadcastResult = iota

	// A submission for the round is now in flight.
	BroadcastStarted

	// Another submission was in flight.
	// The round replaced any older pending round
	// and starts once the in-flight submission lands or is superseded.
	BroadcastPending

	// The round was not newer than the verified watermark,
	// the last submitted round, or a round already in flight or pending.
	BroadcastSkippedStale
)

func (r BroadcastResult) String() string {
	switch r {
	case BroadcastStarted:
		return "Started"
	case BroadcastPending:
		return "Pending"
	case BroadcastSkippedStale:
		return "SkippedStale"
	default:
		return fmt.Sprintf("BroadcastResult(%d)", uint8(r))
	}
}

var errSuperseded = errors.New("round superseded")

// Broadcaster submits finalized rounds to the backing chain,
// one at a time, retrying each until it lands or is superseded.
//
// At most one round waits behind the in-flight submission;
// a newer round replaces it.
type Broadcaster struct {
	log *slog.Logger

	// Lifetime of all submissions.
	ctx context.Context

	chainID   string
	account   string
	endpoints []string
	factory   ClientFactory
	watermark func() uint64

	retryDelay     time.Duration
	attemptTimeout time.Duration

	metrics *wmetrics.Collector

	mu       sync.Mutex
	inFlight bool
	current  uint64 // Round in flight, when inFlight is set.
	pending  *wround.FinalizedRound

	lastSubmitted atomic.Uint64

	// Index into endpoints.
	// Only accessed by the in-flight submission.
	next int

	wg sync.WaitGroup
}

type Config struct {
	// Custom JSON ID of the side-chain on the backing chain.
	ChainID string

	// Account authorizing the side effect.
	Account string

	// Backing-chain access points, tried round-robin.
	Endpoints []string

	Factory ClientFactory

	// Reports the highest round already verified or finalized locally.
	// Required.
	Watermark func() uint64

	// Delay between attempts of the same submission.
	RetryDelay time.Duration

	// Upper bound on a single attempt.
	AttemptTimeout time.Duration

	Metrics *wmetrics.Collector
}

func DefaultConfig() Config {
	return Config{
		RetryDelay:     time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// New returns a Broadcaster whose submissions stop when ctx is cancelled.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Broadcaster, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("wbroadcast: at least one endpoint is required")
	}
	if cfg.Factory == nil {
		return nil, errors.New("wbroadcast: client factory is required")
	}
	if cfg.Watermark == nil {
		return nil, errors.New("wbroadcast: watermark function is required")
	}
	if cfg.RetryDelay <= 0 {
		return nil, fmt.Errorf("wbroadcast: retry delay must be positive, got %s", cfg.RetryDelay)
	}

	return &Broadcaster{
		log: log,
		ctx: ctx,

		chainID:   cfg.ChainID,
		account:   cfg.Account,
		endpoints: cfg.Endpoints,
		factory:   cfg.Factory,
		watermark: cfg.Watermark,

		retryDelay:     cfg.RetryDelay,
		attemptTimeout: cfg.AttemptTimeout,

		metrics: cfg.Metrics,
	}, nil
}

// Broadcast starts submitting fr in the background and returns immediately.
func (b *Broadcaster) Broadcast(fr wround.FinalizedRound) BroadcastResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fr.Round <= max(b.watermark(), b.lastSubmitted.Load()) {
		b.log.Debug("Skipping stale round", "round", fr.Round)
		return BroadcastSkippedStale
	}

	if b.inFlight {
		if fr.Round <= b.current || (b.pending != nil && fr.Round <= b.pending.Round) {
			b.log.Debug("Skipping round not newer than in-flight or pending round", "round", fr.Round)
			return BroadcastSkippedStale
		}
		if b.pending != nil {
			b.log.Info("Replacing pending broadcast", "round", fr.Round, "replaced_round", b.pending.Round)
		} else {
			b.log.Info("Holding round until in-flight broadcast finishes", "round", fr.Round, "in_flight_round", b.current)
		}
		b.pending = &fr
		return BroadcastPending
	}

	b.inFlight = true
	b.current = fr.Round
	b.wg.Add(1)
	go b.run(fr)

	return BroadcastStarted
}

// LastSubmittedRound returns the highest round the backing chain accepted.
func (b *Broadcaster) LastSubmittedRound() uint64 {
	return b.lastSubmitted.Load()
}

// Wait blocks until any in-flight submission has finished.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

// run submits fr, then any pending round, until nothing is pending.
func (b *Broadcaster) run(fr wround.FinalizedRound) {
	defer b.wg.Done()

	for {
		b.submit(fr)

		next, ok := b.takePending()
		if !ok {
			return
		}
		fr = next
	}
}

// takePending moves the pending round in flight,
// or clears the in-flight flag if there is nothing left to submit.
func (b *Broadcaster) takePending() (wround.FinalizedRound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fr := b.pending
	b.pending = nil

	if fr == nil || b.ctx.Err() != nil || fr.Round <= b.lastSubmitted.Load() {
		b.inFlight = false
		b.current = 0
		return wround.FinalizedRound{}, false
	}

	// The watermark is not checked here:
	// finalizing the pending round already raised it to the round itself.
	b.current = fr.Round
	return *fr, true
}

// supersededBy returns a non-nil error once round should no longer be submitted.
func (b *Broadcaster) supersededBy(round uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending != nil && b.pending.Round > round {
		return fmt.Errorf("%w: round %d pending", errSuperseded, b.pending.Round)
	}
	if wm := b.watermark(); wm > round {
		return fmt.Errorf("%w: watermark at %d", errSuperseded, wm)
	}
	return nil
}

func (b *Broadcaster) submit(fr wround.FinalizedRound) {
	log := b.log.With("round", fr.Round)
	se := NewProposeRound(b.chainID, b.account, fr)

	attempt := 0
	err := retry.Constant(b.ctx, b.retryDelay, func(ctx context.Context) error {
		if err := b.supersededBy(fr.Round); err != nil {
			return err
		}

		attempt++
		endpoint := b.endpoints[b.next]
		if err := b.attempt(ctx, endpoint, se); err != nil {
			b.metrics.BroadcastFailure()
			b.next = (b.next + 1) % len(b.endpoints)
			log.Info(
				"Broadcast attempt failed; will retry",
				"attempt", attempt,
				"endpoint", endpoint,
				"next_endpoint", b.endpoints[b.next],
				"err", err,
			)
			return retry.RetryableError(err)
		}

		log.Info("Broadcast finalized round", "attempt", attempt, "endpoint", endpoint)
		return nil
	})

	if err != nil {
		if errors.Is(err, errSuperseded) {
			log.Info("Abandoning broadcast", "err", err)
		} else {
			log.Info("Stopped broadcasting", "cause", err)
		}
		return
	}

	for {
		prev := b.lastSubmitted.Load()
		if fr.Round <= prev || b.lastSubmitted.CompareAndSwap(prev, fr.Round) {
			break
		}
	}
	b.metrics.LastSubmittedRound(b.lastSubmitted.Load())
}

// attempt submits se through a fresh client that is always closed afterwards.
func (b *Broadcaster) attempt(ctx context.Context, endpoint string, se SideEffect) error {
	b.metrics.BroadcastAttempt()

	c, err := b.factory(endpoint)
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", endpoint, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			b.log.Debug("Failed to close broadcast client", "endpoint", endpoint, "err", err)
		}
	}()

	if b.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.attemptTimeout)
		defer cancel()
	}

	return c.SubmitSideEffect(ctx, se)
}
