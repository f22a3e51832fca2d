package wengine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ssc-witness/witness/wcrypto"
	"github.com/ssc-witness/witness/wmetrics"
	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wstore"
)

// Opt is an option for [New].
type Opt func(*Engine) error

// WithIdentity sets the witness account this node acts as,
// and the signer for its registered signing key.
// This option is required.
func WithIdentity(account string, signer wcrypto.Signer) Opt {
	return func(e *Engine) error {
		if account == "" {
			return errors.New("account must not be empty")
		}
		if signer == nil {
			return errors.New("signer must not be nil")
		}
		e.account = account
		e.signer = signer
		return nil
	}
}

// WithRoundStateStore sets the source of round params, schedules, and witnesses.
// This option is required.
func WithRoundStateStore(s wstore.RoundStateStore) Opt {
	return func(e *Engine) error {
		e.rs = s
		return nil
	}
}

// WithBlockLedger sets the source of local block hashes.
// This option is required.
func WithBlockLedger(l wstore.BlockLedger) Opt {
	return func(e *Engine) error {
		e.bl = l
		return nil
	}
}

// WithRoundClient sets the client used to send proposals to other witnesses.
// This option is required.
func WithRoundClient(c RoundClient) Opt {
	return func(e *Engine) error {
		e.client = c
		return nil
	}
}

// WithBroadcaster sets where finalized rounds are sent.
// This option is required.
func WithBroadcaster(b Broadcaster) Opt {
	return func(e *Engine) error {
		e.broadcaster = b
		return nil
	}
}

// WithTickInterval sets how often the engine refreshes round params.
// The default is 3 seconds.
func WithTickInterval(d time.Duration) Opt {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("tick interval must be positive, got %s", d)
		}
		e.tickInterval = d
		return nil
	}
}

// WithRetryDelay sets how long to wait before resending a proposal
// to a witness whose view may still converge.
// The default is 5 seconds.
func WithRetryDelay(d time.Duration) Opt {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("retry delay must be positive, got %s", d)
		}
		e.retryDelay = d
		return nil
	}
}

// WithRequiredSignatures sets the quorum threshold.
// The default is [wround.DefaultRequiredSignatures].
func WithRequiredSignatures(n int) Opt {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("required signatures must be positive, got %d", n)
		}
		e.required = n
		return nil
	}
}

// WithWatermark sets the verified round watermark the engine advances.
// Share it with a [wbroadcast.Broadcaster] so stale rounds are not resubmitted.
// By default the engine uses a private watermark.
func WithWatermark(w *wround.Watermark) Opt {
	return func(e *Engine) error {
		e.watermark = w
		return nil
	}
}

func WithMetricsCollector(c *wmetrics.Collector) Opt {
	return func(e *Engine) error {
		e.metrics = c
		return nil
	}
}

func (e *Engine) validateSettings() error {
	var err error

	if e.account == "" || e.signer == nil {
		err = errors.Join(err, errors.New("no identity set (use wengine.WithIdentity)"))
	}
	if e.rs == nil {
		err = errors.Join(err, errors.New("no round state store set (use wengine.WithRoundStateStore)"))
	}
	if e.bl == nil {
		err = errors.Join(err, errors.New("no block ledger set (use wengine.WithBlockLedger)"))
	}
	if e.client == nil {
		err = errors.Join(err, errors.New("no round client set (use wengine.WithRoundClient)"))
	}
	if e.broadcaster == nil {
		err = errors.Join(err, errors.New("no broadcaster set (use wengine.WithBroadcaster)"))
	}

	return err
}
