package wtest

import (
	"testing"
	"time"
)

// ScaleDuration is the base timeout for the channel helpers.
// It is generous compared to typical in-memory latencies,
// so that slow CI machines do not produce spurious failures.
const ScaleDuration = 500 * time.Millisecond

// ReceiveSoon returns the next value from ch,
// failing the test if no value arrives within ScaleDuration.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(ScaleDuration):
		t.Fatalf("no value received within %s", ScaleDuration)
	}

	panic("unreachable")
}

// ReceiveWithin is like ReceiveSoon but with an explicit timeout,
// for values that depend on timers in the code under test.
func ReceiveWithin[T any](t testing.TB, ch <-chan T, d time.Duration) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("no value received within %s", d)
	}

	panic("unreachable")
}

// NotSending fails the test if ch has a value ready
// within a short window.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("expected no value, got %v", v)
	case <-time.After(25 * time.Millisecond):
		// Okay.
	}
}
