package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (c *captureHandler) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *captureHandler) WithGroup(string) slog.Handler      { return c }

func (c *captureHandler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func emit(t *testing.T, h slog.Handler, level slog.Level, msg string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := slog.NewRecord(time.Now(), level, msg, 0)
		if err := h.Handle(context.Background(), rec); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
}

func TestNewSamplingHandler_DisabledReturnsInner(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{Enabled: false})
	if h != inner {
		t.Fatal("expected inner handler to be returned unchanged when sampling is disabled")
	}
}

func TestSampling_ThresholdAlwaysPasses(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 5,
		Rate:      0.25,
	})

	emit(t, h, slog.LevelInfo, "request handled", 5)

	if got := inner.count(); got != 5 {
		t.Fatalf("expected all %d records under threshold to pass, got %d", 5, got)
	}
}

func TestSampling_RateAfterThreshold(t *testing.T) {
	// Threshold 2, rate 0.25: records 1-2 pass, then every 4th starting
	// with the first over-threshold record (3, 7, 11).
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 2,
		Rate:      0.25,
		ErrorRate: 1.0,
	})

	emit(t, h, slog.LevelInfo, "cache miss", 12)

	if got := inner.count(); got != 5 {
		t.Fatalf("expected 5 of 12 records to pass, got %d", got)
	}
}

func TestSampling_ErrorRateAppliesToWarnAndAbove(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 2,
		Rate:      0.25,
		ErrorRate: 1.0,
	})

	emit(t, h, slog.LevelWarn, "retry exhausted", 12)
	emit(t, h, slog.LevelError, "publish failed", 12)

	if got := inner.count(); got != 24 {
		t.Fatalf("expected all warn and error records to pass at error rate 1.0, got %d of 24", got)
	}
}

func TestSampling_DistinctMessagesCountedSeparately(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 3,
		Rate:      0.25,
	})

	emit(t, h, slog.LevelInfo, "asset created", 3)
	emit(t, h, slog.LevelInfo, "asset updated", 3)

	if got := inner.count(); got != 6 {
		t.Fatalf("expected both messages to have their own threshold, got %d of 6", got)
	}
}

func TestSampling_NeverSamplePrefix(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:     true,
		Tick:        time.Minute,
		Threshold:   1,
		Rate:        0.25,
		NeverSample: []string{"audit:"},
	})

	emit(t, h, slog.LevelInfo, "audit: exception approved", 10)

	if got := inner.count(); got != 10 {
		t.Fatalf("expected audit-prefixed records to bypass sampling, got %d of 10", got)
	}
}

func TestSampling_WindowReset(t *testing.T) {
	// Threshold 1 with a near-zero rate: per window, record 1 passes the
	// threshold and record 2 is the first sampled pass, the rest drop.
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      40 * time.Millisecond,
		Threshold: 1,
		Rate:      0.000001,
		ErrorRate: 0.000001,
	})

	emit(t, h, slog.LevelInfo, "poll tick", 5)
	if got := inner.count(); got != 2 {
		t.Fatalf("expected 2 passes in first window, got %d", got)
	}

	time.Sleep(60 * time.Millisecond)

	emit(t, h, slog.LevelInfo, "poll tick", 5)
	if got := inner.count(); got != 4 {
		t.Fatalf("expected counter reset after tick, got %d total passes", got)
	}
}

func TestSampling_MaxKeysBypassesUnseenMessages(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 1,
		Rate:      0.25,
		MaxKeys:   1,
	})

	emit(t, h, slog.LevelInfo, "tracked message", 1)
	emit(t, h, slog.LevelInfo, "overflow message", 6)

	// The second message never gets a counter, so nothing of it drops.
	if got := inner.count(); got != 7 {
		t.Fatalf("expected overflow messages to bypass sampling, got %d of 7", got)
	}
}

func TestSampling_OnDroppedCallback(t *testing.T) {
	var (
		mu      sync.Mutex
		dropped []string
	)
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 2,
		Rate:      0.25,
		ErrorRate: 1.0,
		OnDropped: func(_ slog.Level, msg string) {
			mu.Lock()
			dropped = append(dropped, msg)
			mu.Unlock()
		},
	})

	emit(t, h, slog.LevelInfo, "cache miss", 12)

	mu.Lock()
	defer mu.Unlock()
	if len(dropped) != 7 {
		t.Fatalf("expected 7 dropped callbacks, got %d", len(dropped))
	}
	for _, msg := range dropped {
		if msg != "cache miss" {
			t.Fatalf("unexpected dropped message %q", msg)
		}
	}
}

func TestSampling_OnDroppedPanicDoesNotPropagate(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 1,
		Rate:      0.000001,
		ErrorRate: 0.000001,
		OnDropped: func(slog.Level, string) {
			panic("callback blew up")
		},
	})

	emit(t, h, slog.LevelInfo, "noisy line", 5)

	if got := inner.count(); got != 2 {
		t.Fatalf("expected sampling to keep working through callback panics, got %d passes", got)
	}
}

func TestSampling_StateSharedAcrossWithAttrs(t *testing.T) {
	inner := &captureHandler{}
	h := NewSamplingHandler(inner, SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 2,
		Rate:      0.25,
	})
	derived := h.WithAttrs([]slog.Attr{slog.String("component", "ingest")})

	emit(t, h, slog.LevelInfo, "row skipped", 2)
	emit(t, derived, slog.LevelInfo, "row skipped", 2)

	// 4 records of one message against threshold 2: records 1-3 pass
	// (2 threshold + first sampled), record 4 drops.
	if got := inner.count(); got != 3 {
		t.Fatalf("expected derived handlers to share sampling state, got %d passes", got)
	}
}
