package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jacentio/docket/internal/gate"
)

// Governor serializes throughput changes on the collection's offer.
//
// Mutations (Set, Increase, Decrease) run while holding an in-process
// reservation gate, so two changes made through the same Client never
// interleave their read-modify-write. The gate is advisory: other
// processes may still change the offer concurrently.
//
// The offer's link is cached after the first lookup. InvalidateOffer drops
// it; a cached link that has gone missing is dropped and looked up again.
type Governor struct {
	client *Client
	gate   *gate.Gate

	mu        sync.Mutex
	offerLink string
}

func newGovernor(c *Client) *Governor {
	return &Governor{
		client: c,
		gate:   gate.New(c.config.GatePollInterval),
	}
}

// Min returns the lowest throughput the governor will write.
func (g *Governor) Min() int {
	return g.client.config.MinThroughput
}

// Max returns the highest throughput the governor will write.
func (g *Governor) Max() int {
	return g.client.config.MaxThroughput
}

// Clamp bounds v to [Min, Max].
func (g *Governor) Clamp(v int) int {
	return clamp(v, g.Min(), g.Max())
}

// InvalidateOffer drops the cached offer link.
func (g *Governor) InvalidateOffer() {
	g.mu.Lock()
	g.offerLink = ""
	g.mu.Unlock()
}

// CachedOfferLink returns the cached offer link, or "".
func (g *Governor) CachedOfferLink() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.offerLink
}

// Get returns the collection's current throughput.
func (g *Governor) Get(ctx context.Context) (_ int, err error) {
	ctx, span := g.client.startSpan(ctx, "Throughput.Get")
	defer func() { endSpan(span, err) }()

	_, cur, err := g.current(ctx)
	if err != nil {
		return 0, err
	}
	return cur, nil
}

// Set writes v, clamped to [Min, Max]. It reports false without error when
// the gate could not be claimed within Config.GateTimeout.
func (g *Governor) Set(ctx context.Context, v int) (_ bool, err error) {
	ctx, span := g.client.startSpan(ctx, "Throughput.Set", attribute.Int("docket.throughput.value", v))
	defer func() { endSpan(span, err) }()

	_, ok, err := g.adjust(ctx, "set", func(int) int { return g.Clamp(v) })
	return ok && err == nil, err
}

// Increase raises throughput by delta without exceeding ceiling. A
// ceiling <= 0, or above Max, means Max; one below Min means Min. It
// returns the new throughput, or false without error when the gate could
// not be claimed.
func (g *Governor) Increase(ctx context.Context, delta, ceiling int) (_ int, _ bool, err error) {
	ctx, span := g.client.startSpan(ctx, "Throughput.Increase", attribute.Int("docket.throughput.delta", delta))
	defer func() { endSpan(span, err) }()

	if ceiling <= 0 || ceiling > g.Max() {
		ceiling = g.Max()
	}
	if ceiling < g.Min() {
		ceiling = g.Min()
	}
	return g.adjust(ctx, "increase", func(cur int) int {
		return clamp(cur+delta, g.Min(), ceiling)
	})
}

// Decrease lowers throughput by delta without going below Min. It returns
// the new throughput, or false without error when the gate could not be
// claimed.
func (g *Governor) Decrease(ctx context.Context, delta int) (_ int, _ bool, err error) {
	ctx, span := g.client.startSpan(ctx, "Throughput.Decrease", attribute.Int("docket.throughput.delta", delta))
	defer func() { endSpan(span, err) }()

	return g.adjust(ctx, "decrease", func(cur int) int {
		return g.Clamp(cur - delta)
	})
}

// adjust runs one gated read-modify-write of the offer.
func (g *Governor) adjust(ctx context.Context, op string, next func(cur int) int) (int, bool, error) {
	var result int

	ok, err := g.withGate(ctx, op, func() error {
		offer, cur, err := g.current(ctx)
		if err != nil {
			return err
		}

		target := next(cur)
		updated := *offer
		updated.Content = &OfferContent{Throughput: target}

		if _, err := g.client.conn.ReplaceOffer(ctx, offer.Self, &updated); err != nil {
			return transformError(err)
		}

		g.client.metrics.throughput(target)
		g.client.logger.Info("throughput changed",
			zap.String("op", op),
			zap.Int("from", cur),
			zap.Int("to", target))
		result = target
		return nil
	})
	if !ok || err != nil {
		return 0, ok, err
	}
	return result, true, nil
}

// withGate runs fn while holding the gate. A cancelled ctx is returned as
// an error rather than reported as a busy gate.
func (g *Governor) withGate(ctx context.Context, op string, fn func() error) (bool, error) {
	start := time.Now()
	acquired := g.gate.Acquire(ctx, g.client.config.GateTimeout)
	g.client.metrics.gateWait(time.Since(start).Seconds(), acquired)

	if !acquired {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		g.client.logger.Warn("throughput gate not acquired",
			zap.String("op", op),
			zap.Duration("timeout", g.client.config.GateTimeout))
		return false, nil
	}
	defer g.gate.Release()

	return true, fn()
}

// current reads the offer and its throughput.
func (g *Governor) current(ctx context.Context) (*Offer, int, error) {
	offer, err := g.offer(ctx)
	if err != nil {
		return nil, 0, err
	}
	if offer.Content == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoOfferContent, offer.Self)
	}
	g.client.metrics.throughput(offer.Content.Throughput)
	return offer, offer.Content.Throughput, nil
}

// offer reads the collection's offer through the cached link, discovering
// and caching the link when needed.
func (g *Governor) offer(ctx context.Context) (*Offer, error) {
	conn := g.client.conn

	if link := g.CachedOfferLink(); link != "" {
		offer, err := conn.ReadOffer(ctx, link)
		if err == nil && offer != nil {
			return offer, nil
		}
		if err != nil && !IsNotFound(err) {
			return nil, transformError(err)
		}
		g.client.logger.Info("cached offer link is stale, rediscovering",
			zap.String("offer", link))
		g.InvalidateOffer()
	}

	collLink := g.client.CollectionLink()
	offer, err := conn.ReadOfferByCollection(ctx, collLink)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrOfferNotFound, collLink, err)
		}
		return nil, transformError(err)
	}
	if offer == nil || !sameLink(offer.Resource, collLink) {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, collLink)
	}

	g.mu.Lock()
	g.offerLink = offer.Self
	g.mu.Unlock()
	return offer, nil
}

func sameLink(a, b string) bool {
	return strings.Trim(a, "/") == strings.Trim(b, "/")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
