package logger

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// SamplingConfig controls per-message log sampling. Within each Tick
// window the first Threshold records of an identical level+message pass
// through; beyond that only a Rate fraction survives (ErrorRate for
// warnings and errors).
type SamplingConfig struct {
	Enabled   bool
	Tick      time.Duration
	Threshold uint64

	// Rate and ErrorRate are fractions in [0.0, 1.0]. Sampling past the
	// threshold is deterministic, not random: with Rate 0.1 every tenth
	// record survives, starting with the first one over the threshold.
	Rate      float64
	ErrorRate float64

	// MaxKeys bounds the tracking table. Once full, unseen messages
	// bypass sampling rather than evict live counters.
	MaxKeys int

	// NeverSample lists message prefixes exempt from sampling, for
	// audit-relevant lines that must not be lost.
	NeverSample []string

	// OnDropped is invoked for each suppressed record.
	OnDropped func(level slog.Level, message string)
}

func (c SamplingConfig) withDefaults() SamplingConfig {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Threshold == 0 {
		c.Threshold = 100
	}
	if c.Rate <= 0 {
		c.Rate = 0.1
	}
	if c.ErrorRate <= 0 {
		c.ErrorRate = 1.0
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	return c
}

// NewSamplingHandler wraps inner with sampling. With sampling disabled
// the inner handler is returned unchanged.
func NewSamplingHandler(inner slog.Handler, cfg SamplingConfig) slog.Handler {
	if !cfg.Enabled {
		return inner
	}
	return &samplingHandler{
		inner: inner,
		cfg:   cfg.withDefaults(),
		state: &samplerState{seen: make(map[sampleKey]*sampleCounter)},
	}
}

type sampleKey struct {
	level   slog.Level
	message string
}

type sampleCounter struct {
	windowStart time.Time
	count       uint64
}

// samplerState is shared across handlers derived via WithAttrs and
// WithGroup, so the same message is sampled consistently no matter which
// child logger emits it.
type samplerState struct {
	mu   sync.Mutex
	seen map[sampleKey]*sampleCounter
}

type samplingHandler struct {
	inner slog.Handler
	cfg   SamplingConfig
	state *samplerState
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.sample(record.Level, record.Message) {
		return nil
	}
	return h.inner.Handle(ctx, record)
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{inner: h.inner.WithAttrs(attrs), cfg: h.cfg, state: h.state}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{inner: h.inner.WithGroup(name), cfg: h.cfg, state: h.state}
}

// sample reports whether a record with the given level and message should
// be emitted.
func (h *samplingHandler) sample(level slog.Level, message string) bool {
	recordProcessed(level)

	for _, prefix := range h.cfg.NeverSample {
		if strings.HasPrefix(message, prefix) {
			return true
		}
	}

	key := sampleKey{level: level, message: message}
	now := time.Now()

	h.state.mu.Lock()
	counter, ok := h.state.seen[key]
	if !ok {
		if len(h.state.seen) >= h.cfg.MaxKeys {
			// Table full. Letting the record through beats evicting a
			// hot counter and restarting its window.
			h.state.mu.Unlock()
			return true
		}
		counter = &sampleCounter{windowStart: now}
		h.state.seen[key] = counter
	}
	if now.Sub(counter.windowStart) >= h.cfg.Tick {
		counter.windowStart = now
		counter.count = 0
	}
	counter.count++
	n := counter.count
	h.state.mu.Unlock()

	if n <= h.cfg.Threshold {
		return true
	}

	rate := h.cfg.Rate
	if level >= slog.LevelWarn {
		rate = h.cfg.ErrorRate
	}
	if h.keep(n, rate) {
		return true
	}

	recordDropped(level)
	h.notifyDropped(level, message)
	return false
}

// keep applies the post-threshold rate to the n-th record in the window.
func (h *samplingHandler) keep(n uint64, rate float64) bool {
	if rate >= 1.0 {
		return true
	}
	if rate <= 0 {
		return false
	}
	interval := uint64(math.Round(1.0 / rate))
	if interval < 1 {
		interval = 1
	}
	return (n-h.cfg.Threshold-1)%interval == 0
}

func (h *samplingHandler) notifyDropped(level slog.Level, message string) {
	if h.cfg.OnDropped == nil {
		return
	}
	defer func() {
		// A panicking callback must not take the logger down with it.
		_ = recover()
	}()
	h.cfg.OnDropped(level, message)
}
