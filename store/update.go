package store

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jacentio/docket/internal/merge"
)

// Update applies a partial document onto the stored one using optimistic
// concurrency.
//
// Each attempt reads the current document and its etag, deep-merges
// partial onto it and replaces it with an If-Match precondition. When a
// concurrent writer wins the race the attempt waits and starts over from a
// fresh read, up to Config.UpdateAttempts attempts. Update never creates a
// document.
//
// Errors:
//   - ErrMissingID when partial has no id (no I/O is done)
//   - ErrDocumentNotExist when the document is missing
//   - ErrRetriesExhausted, wrapping the last precondition failure, when every attempt lost
//   - any other connector error, unchanged
func (c *Client) Update(ctx context.Context, partial Entity, opts *RequestOptions) (_ *Result, err error) {
	id := partial.ID()
	link := c.DocumentLink(id)
	ctx, span := c.startSpan(ctx, "Update", attribute.String("db.link", link))
	defer func() {
		if err != nil {
			c.metrics.updateFailure()
		}
		endSpan(span, err)
	}()

	if id == "" {
		return nil, ErrMissingID
	}
	if err := ValidateRequestOptions(opts); err != nil {
		return nil, err
	}

	var readOpts, writeOpts RequestOptions
	if opts != nil {
		readOpts = *opts
		writeOpts = *opts
	}
	readOpts.IfMatch, readOpts.IfNoneMatch = "", ""
	writeOpts.IfNoneMatch = ""

	patch := map[string]any(StripMetadata(partial))
	attempts := c.config.UpdateAttempts

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		c.metrics.updateAttempt()
		span.SetAttributes(attribute.Int("docket.update.attempt", attempt+1))

		current, resp, err := c.conn.ReadItem(ctx, link, &readOpts)
		if err != nil {
			if IsNotFound(err) {
				return nil, fmt.Errorf("%w: %q", ErrDocumentNotExist, link)
			}
			return nil, transformError(err)
		}

		etag := current.ETag()
		if resp != nil && resp.ETag != "" {
			etag = resp.ETag
		}

		merged := Record(merge.Apply(map[string]any(Wash(current)), patch))
		writeOpts.IfMatch = etag

		rec, wresp, err := c.conn.ReplaceItem(ctx, link, merged, &writeOpts)
		if err == nil {
			if attempt > 0 {
				c.logger.Debug("update succeeded after retry",
					zap.String("link", link),
					zap.Int("attempt", attempt+1))
			}
			return newResult(c.normalize(rec), rec, wresp), nil
		}
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %q: %w", ErrDocumentNotExist, link, transformError(err))
		}
		if !IsPreconditionFailed(err) {
			return nil, transformError(err)
		}

		c.metrics.updateConflict()
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Debug("update lost etag race, retrying",
			zap.String("link", link),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	c.logger.Warn("update retries exhausted",
		zap.String("link", link),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return nil, fmt.Errorf("%w after %d attempts on %q: %w", ErrRetriesExhausted, attempts, link, transformError(lastErr))
}

// backoff returns the wait after the given failed attempt (0-indexed).
func (c *Client) backoff(attempt int) time.Duration {
	return c.config.UpdateBackoff + time.Duration(attempt)*c.config.UpdateBackoffStep
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
