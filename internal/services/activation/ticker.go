package activation

import (
	"time"
)

// Ticker drives sequencer progress. The production implementation wraps
// time.Ticker; tests inject a manual one and step it explicitly.
type Ticker interface {
	Tick() <-chan time.Time
	Stop()
}

// TickerFactory builds a fresh ticker per sequencer run
type TickerFactory func() Ticker

type intervalTicker struct {
	t *time.Ticker
}

// NewIntervalTicker returns a factory producing wall-clock tickers
func NewIntervalTicker(interval time.Duration) TickerFactory {
	return func() Ticker {
		return &intervalTicker{t: time.NewTicker(interval)}
	}
}

func (t *intervalTicker) Tick() <-chan time.Time {
	return t.t.C
}

func (t *intervalTicker) Stop() {
	t.t.Stop()
}

// ManualTicker is a hand-driven ticker for tests
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker creates a manual ticker
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time, 1024)}
}

// Step fires n ticks
func (t *ManualTicker) Step(n int) {
	for i := 0; i < n; i++ {
		t.ch <- time.Now()
	}
}

// Drain discards buffered ticks so a ticker can be reused across runs
func (t *ManualTicker) Drain() {
	for {
		select {
		case <-t.ch:
		default:
			return
		}
	}
}

func (t *ManualTicker) Tick() <-chan time.Time {
	return t.ch
}

func (t *ManualTicker) Stop() {}
