// Package wlog contains slog value helpers.
package wlog

import "log/slog"

// Abbrev shortens long hex digests to their first 12 characters,
// which keeps round hashes readable in logs.
type Abbrev string

func (a Abbrev) LogValue() slog.Value {
	if len(a) <= 12 {
		return slog.StringValue(string(a))
	}
	return slog.StringValue(string(a[:12]) + "…")
}
