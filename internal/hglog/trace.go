// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package hglog

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"golang.org/x/time/rate"
)

// Tracer backs the print-value-moves and print-temp-moves diagnostic flags
// (spec §6). Either flag enables the same trace, which fires once per
// executed op, once per mark call and once when the report is built;
// individual shadow-value and shadow-temp ownership transfers are not
// traced. Under a heavily instrumented run that can still be many millions
// of events; Tracer throttles emission with a token-bucket limiter and uses a
// small bounded cache purely to sample "have I just said this" so repeated
// identical lines in a tight loop collapse to one, without that cache ever
// being treated as authoritative state (the ref-counts themselves still
// live in internal/shadow).
type Tracer struct {
	enabled bool
	logger  *Logger
	limiter *rate.Limiter
	seen    *fastcache.Cache
}

// NewTracer creates a Tracer. When enabled is false, Trace is a no-op with
// no allocation on the hot path.
func NewTracer(enabled bool, logger *Logger) *Tracer {
	t := &Tracer{enabled: enabled, logger: logger}
	if enabled {
		t.limiter = rate.NewLimiter(rate.Limit(2000), 200)
		t.seen = fastcache.New(1 << 20) // 1 MiB sampling window
	}
	return t
}

// Trace emits a diagnostic line for a named event (e.g. "execute",
// "escape-from-float", "report-built") about subject, subject to rate limiting and de-duplication.
func (t *Tracer) Trace(event string, subject fmt.Stringer) {
	if t == nil || !t.enabled {
		return
	}
	key := []byte(event + ":" + subject.String())
	if t.seen.Has(key) {
		return
	}
	t.seen.Set(key, []byte{1})
	if !t.limiter.Allow() {
		return
	}
	t.logger.Debug("trace", "event", event, "subject", subject.String())
}
