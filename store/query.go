package store

import (
	"context"
	"errors"
	"iter"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultCollectLimit is the quantity Collect callers conventionally use
// when they don't care about an exact bound.
const DefaultCollectLimit = 100

// Page is one page of query results.
type Page struct {
	// Resources are the page's documents in store order. Nil when the
	// query was already exhausted.
	Resources []Entity

	// Continuation resumes the query after this page; empty on the last page.
	Continuation string

	// Headers is the connector's response metadata.
	Headers Headers
}

// Paginator fetches one page per NextPage call over a server-side cursor.
// It is forward-only and not restartable.
type Paginator struct {
	client *Client
	cursor Cursor
	done   bool
	err    error
	pages  int
}

// Paginate issues query against the collection and returns a paginator
// positioned before the first page. No page is fetched yet.
func (c *Client) Paginate(ctx context.Context, query Query, opts *FeedOptions) (*Paginator, error) {
	if err := ValidateFeedOptions(opts); err != nil {
		return nil, err
	}

	cursor, err := c.conn.QueryItems(ctx, c.CollectionLink(), query, opts)
	if err != nil {
		return nil, transformError(err)
	}
	return &Paginator{client: c, cursor: cursor}, nil
}

// HasMorePages reports whether NextPage may return another page.
func (p *Paginator) HasMorePages() bool {
	return !p.done && p.err == nil
}

// PagesFetched returns the number of pages requested from the connector.
func (p *Paginator) PagesFetched() int {
	return p.pages
}

// NextPage fetches the next page. It returns ErrNoMorePages once the
// query is exhausted. A connector failure is returned as-is and is
// terminal: pagination errors are not retried.
func (p *Paginator) NextPage(ctx context.Context) (*Page, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.done {
		return nil, ErrNoMorePages
	}

	recs, resp, err := p.cursor.Next(ctx)
	p.pages++
	p.client.metrics.pageFetch()
	if err != nil {
		p.err = transformError(err)
		p.client.logger.Debug("page fetch failed",
			zap.Int("page", p.pages),
			zap.Error(err))
		return nil, p.err
	}
	if recs == nil {
		p.done = true
		return nil, ErrNoMorePages
	}

	page := &Page{
		Resources: p.client.normalizeAll(recs),
		Headers:   resp.headers(),
	}
	if resp != nil {
		page.Continuation = resp.Continuation
	}
	if page.Continuation == "" {
		p.done = true
	}
	return page, nil
}

// QueryPage returns a single page of results and the continuation to
// resume from. Pass the returned continuation in opts.Continuation to get
// the following page.
func (c *Client) QueryPage(ctx context.Context, query Query, opts *FeedOptions) (_ *Page, err error) {
	ctx, span := c.startSpan(ctx, "QueryPage", attribute.String("db.query", query.Text))
	defer func() { endSpan(span, err) }()

	p, err := c.Paginate(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	page, err := p.NextPage(ctx)
	if errors.Is(err, ErrNoMorePages) {
		return &Page{}, nil
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Iterator yields query results one document at a time. Pages are fetched
// lazily: abandoning the iterator fetches nothing further.
type Iterator struct {
	pages *Paginator
	buf   []Entity
	err   error
}

// Iterate issues query and returns a lazy iterator over its results.
func (c *Client) Iterate(ctx context.Context, query Query, opts *FeedOptions) (*Iterator, error) {
	p, err := c.Paginate(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return &Iterator{pages: p}, nil
}

// Next returns the next document, fetching a page when the current one is
// used up. It returns ErrIteratorDone once the query is exhausted.
func (it *Iterator) Next(ctx context.Context) (Entity, error) {
	for len(it.buf) == 0 {
		if it.err != nil {
			return nil, it.err
		}
		page, err := it.pages.NextPage(ctx)
		switch {
		case errors.Is(err, ErrNoMorePages):
			it.err = ErrIteratorDone
		case err != nil:
			it.err = err
		default:
			it.buf = page.Resources
		}
	}

	e := it.buf[0]
	it.buf[0] = nil
	it.buf = it.buf[1:]
	return e, nil
}

// PagesFetched returns the number of pages requested so far.
func (it *Iterator) PagesFetched() int {
	return it.pages.PagesFetched()
}

// All returns a range-over-func sequence of the remaining documents.
// Iteration stops after the first error, which is yielded.
func (it *Iterator) All(ctx context.Context) iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		for {
			e, err := it.Next(ctx)
			if errors.Is(err, ErrIteratorDone) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Sequence is a forward-only source of values that signals exhaustion
// with ErrIteratorDone.
type Sequence[T any] interface {
	Next(ctx context.Context) (T, error)
}

// Collect materializes up to n values from seq, or all of them when n is
// negative. It stops at exhaustion or once n values are collected, without
// advancing seq past the last collected value.
func Collect[T any](ctx context.Context, seq Sequence[T], n int) ([]T, error) {
	var out []T
	for n < 0 || len(out) < n {
		v, err := seq.Next(ctx)
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
