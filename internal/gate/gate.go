// Package gate provides the in-process reservation gate that serializes
// throughput changes against a shared remote offer.
package gate

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the interval between claim attempts.
const DefaultPollInterval = 50 * time.Millisecond

// Gate is an advisory mutual-exclusion flag. The zero value is an open gate
// polling at DefaultPollInterval.
type Gate struct {
	reserved atomic.Bool
	interval time.Duration
}

// New returns an open gate polling at the given interval.
func New(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// TryAcquire claims the gate without waiting.
func (g *Gate) TryAcquire() bool {
	return g.reserved.CompareAndSwap(false, true)
}

// Acquire polls until the gate is claimed, the timeout elapses or ctx is
// done. It reports whether the gate was claimed; on true the caller owns
// the gate and must call Release.
func (g *Gate) Acquire(ctx context.Context, timeout time.Duration) bool {
	if g.TryAcquire() {
		return true
	}

	interval := g.interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.C:
			if g.TryAcquire() {
				return true
			}
			if !now.Before(deadline) {
				return false
			}
		}
	}
}

// Release opens the gate.
func (g *Gate) Release() {
	g.reserved.Store(false)
}

// Reserved reports whether the gate is currently held.
func (g *Gate) Reserved() bool {
	return g.reserved.Load()
}

// Do runs fn while holding the gate. It returns false without calling fn
// if the gate could not be claimed. The gate is released on every exit
// path, including a panic in fn.
func (g *Gate) Do(ctx context.Context, timeout time.Duration, fn func() error) (bool, error) {
	if !g.Acquire(ctx, timeout) {
		return false, nil
	}
	defer g.Release()
	return true, fn()
}
