package store

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/jacentio/docket/store"

// Result is the outcome of a single-document operation.
type Result struct {
	// Resource is the document, or nil when a read found nothing or after a delete.
	Resource Entity

	// ETag is the version tag of Resource.
	ETag string

	// StatusCode is the connector's status for the call.
	StatusCode int

	// Headers is the connector's response metadata.
	Headers Headers
}

func newResult(e Entity, rec Record, resp *Response) *Result {
	r := &Result{Resource: e, Headers: resp.headers()}
	if resp != nil {
		r.ETag = resp.ETag
		r.StatusCode = resp.StatusCode
	}
	if r.ETag == "" {
		r.ETag = rec.ETag()
	}
	return r
}

// Client provides typed document operations on one collection over a Connector.
type Client struct {
	conn    Connector
	config  Config
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer

	washDocuments atomic.Bool
	governor      *Governor
}

// New creates a new Client instance.
func New(conn Connector, config Config) *Client {
	config.validate()
	c := &Client{
		conn:    conn,
		config:  config,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	c.washDocuments.Store(!config.DisableNormalization)
	c.governor = newGovernor(c)
	return c
}

// SetLogger sets the logger. A nil logger disables logging.
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger.With(zap.String("collection", c.CollectionLink()))
}

// SetMetrics sets the metrics sink. A nil value disables metrics.
func (c *Client) SetMetrics(m *Metrics) {
	c.metrics = m
}

// SetTracerProvider replaces the global tracer provider for this client.
func (c *Client) SetTracerProvider(tp trace.TracerProvider) {
	c.tracer = tp.Tracer(tracerName)
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Connector returns the underlying connector.
func (c *Client) Connector() Connector {
	return c.conn
}

// Normalize reports whether returned documents are stripped of store metadata.
func (c *Client) Normalize() bool {
	return c.washDocuments.Load()
}

// SetNormalize toggles metadata stripping. Safe for concurrent use.
func (c *Client) SetNormalize(v bool) {
	c.washDocuments.Store(v)
}

// Throughput returns the collection's throughput governor.
func (c *Client) Throughput() *Governor {
	return c.governor
}

func (c *Client) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.name", c.config.Database),
		attribute.String("db.collection", c.config.Collection),
	)
	return c.tracer.Start(ctx, "docket."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Read reads a document by id or by document. A missing document is not an
// error: the result has a nil Resource.
func (c *Client) Read(ctx context.Context, idOrDoc any, opts *RequestOptions) (_ *Result, err error) {
	link := c.DocumentLink(idOrDoc)
	ctx, span := c.startSpan(ctx, "Read", attribute.String("db.link", link))
	defer func() { endSpan(span, err) }()

	if err := ValidateRequestOptions(opts); err != nil {
		return nil, err
	}

	rec, resp, err := c.conn.ReadItem(ctx, link, opts)
	if err != nil {
		if IsNotFound(err) {
			return &Result{Headers: resp.headers(), StatusCode: StatusCode(err)}, nil
		}
		return nil, transformError(err)
	}
	return newResult(c.normalize(rec), rec, resp), nil
}

// Create creates a document that must not exist yet. A document without
// an id is assigned a random one.
func (c *Client) Create(ctx context.Context, doc Entity, opts *RequestOptions) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "Create")
	defer func() { endSpan(span, err) }()

	if err := ValidateRequestOptions(opts); err != nil {
		return nil, err
	}

	rec := withID(doc)
	rec, resp, err := c.conn.CreateItem(ctx, c.CollectionLink(), rec, opts)
	if err != nil {
		return nil, transformError(err)
	}
	return newResult(c.normalize(rec), rec, resp), nil
}

// Replace replaces an existing document. Set opts.IfMatch to make the
// write conditional on the document's etag.
func (c *Client) Replace(ctx context.Context, doc Entity, opts *RequestOptions) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "Replace")
	defer func() { endSpan(span, err) }()

	if doc.ID() == "" {
		return nil, ErrMissingID
	}
	if err := ValidateRequestOptions(opts); err != nil {
		return nil, err
	}

	rec, resp, err := c.conn.ReplaceItem(ctx, c.DocumentLink(doc), StripMetadata(doc), opts)
	if err != nil {
		return nil, transformError(err)
	}
	return newResult(c.normalize(rec), rec, resp), nil
}

// Upsert creates a document or replaces it if it exists.
func (c *Client) Upsert(ctx context.Context, doc Entity, opts *RequestOptions) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "Upsert")
	defer func() { endSpan(span, err) }()

	if err := ValidateRequestOptions(opts); err != nil {
		return nil, err
	}

	rec, resp, err := c.conn.UpsertItem(ctx, c.CollectionLink(), withID(doc), opts)
	if err != nil {
		return nil, transformError(err)
	}
	return newResult(c.normalize(rec), rec, resp), nil
}

// Delete deletes a document by id or by document.
func (c *Client) Delete(ctx context.Context, idOrDoc any, opts *RequestOptions) (_ *Result, err error) {
	link := c.DocumentLink(idOrDoc)
	ctx, span := c.startSpan(ctx, "Delete", attribute.String("db.link", link))
	defer func() { endSpan(span, err) }()

	if err := ValidateRequestOptions(opts); err != nil {
		return nil, err
	}

	resp, err := c.conn.DeleteItem(ctx, link, opts)
	if err != nil {
		return nil, transformError(err)
	}
	return newResult(nil, nil, resp), nil
}

// withID returns a metadata-free copy of doc carrying an id.
func withID(doc Entity) Record {
	rec := StripMetadata(doc)
	if rec == nil {
		rec = Record{}
	}
	if rec.ID() == "" {
		rec[FieldID] = uuid.NewString()
	}
	return rec
}
