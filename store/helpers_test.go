package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacentio/docket/memstore"
	"github.com/jacentio/docket/store"
)

func testConfig() store.Config {
	cfg := store.DefaultConfig()
	cfg.Database = "db"
	cfg.Collection = "people"
	cfg.UpdateBackoff = time.Millisecond
	cfg.UpdateBackoffStep = time.Millisecond
	cfg.GatePollInterval = time.Millisecond
	cfg.GateTimeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, opts ...memstore.Option) (*store.Client, *memstore.Store) {
	t.Helper()
	mem := memstore.New(opts...)
	return store.New(mem, testConfig()), mem
}

func seedDocs(t *testing.T, c *store.Client, docs ...store.Entity) {
	t.Helper()
	for _, d := range docs {
		if _, err := c.Create(context.Background(), d, nil); err != nil {
			t.Fatalf("seed %v: %v", d.ID(), err)
		}
	}
}

// countingConnector counts connector calls and lets tests intercept writes.
type countingConnector struct {
	store.Connector

	mu             sync.Mutex
	reads          int
	replaces       int
	pageFetches    int
	beforeReplace  func(n int)
	onReplaceOffer func()
}

func (c *countingConnector) ReadItem(ctx context.Context, link string, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.Connector.ReadItem(ctx, link, opts)
}

func (c *countingConnector) ReplaceItem(ctx context.Context, link string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	c.mu.Lock()
	c.replaces++
	n := c.replaces
	hook := c.beforeReplace
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return c.Connector.ReplaceItem(ctx, link, doc, opts)
}

func (c *countingConnector) QueryItems(ctx context.Context, link string, q store.Query, opts *store.FeedOptions) (store.Cursor, error) {
	cur, err := c.Connector.QueryItems(ctx, link, q, opts)
	if err != nil {
		return nil, err
	}
	return &countingCursor{Cursor: cur, owner: c}, nil
}

func (c *countingConnector) ReplaceOffer(ctx context.Context, link string, offer *store.Offer) (*store.Response, error) {
	if c.onReplaceOffer != nil {
		c.onReplaceOffer()
	}
	return c.Connector.ReplaceOffer(ctx, link, offer)
}

func (c *countingConnector) counts() (reads, replaces, pages int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads, c.replaces, c.pageFetches
}

type countingCursor struct {
	store.Cursor
	owner *countingConnector
}

func (c *countingCursor) Next(ctx context.Context) ([]store.Record, *store.Response, error) {
	c.owner.mu.Lock()
	c.owner.pageFetches++
	c.owner.mu.Unlock()
	return c.Cursor.Next(ctx)
}

func newCountingClient(t *testing.T, opts ...memstore.Option) (*store.Client, *countingConnector, *memstore.Store) {
	t.Helper()
	mem := memstore.New(opts...)
	conn := &countingConnector{Connector: mem}
	return store.New(conn, testConfig()), conn, mem
}

// scriptedConnector serves QueryItems from a fixed list of pages.
type scriptedConnector struct {
	store.Connector
	pages []scriptedPage
	calls int
}

type scriptedPage struct {
	recs         []store.Record
	continuation string
	err          error
}

func (s *scriptedConnector) QueryItems(context.Context, string, store.Query, *store.FeedOptions) (store.Cursor, error) {
	return s, nil
}

func (s *scriptedConnector) Next(context.Context) ([]store.Record, *store.Response, error) {
	s.calls++
	if len(s.pages) == 0 {
		return nil, nil, nil
	}
	p := s.pages[0]
	s.pages = s.pages[1:]
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.recs, &store.Response{StatusCode: 200, Continuation: p.continuation}, nil
}
