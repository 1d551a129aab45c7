package store

import (
	"context"
)

// Headers holds response metadata returned by the connector.
type Headers map[string]string

// Well-known header names.
const (
	HeaderContinuation  = "x-ms-continuation"
	HeaderETag          = "etag"
	HeaderRequestCharge = "x-ms-request-charge"
	HeaderSessionToken  = "x-ms-session-token"
	HeaderItemCount     = "x-ms-item-count"
)

// Response is the metadata of one connector call.
type Response struct {
	// StatusCode is the HTTP-equivalent status of the call.
	StatusCode int

	// ETag is the version tag of the written or read record, if any.
	ETag string

	// Continuation is the cursor of the next page; empty on the last page.
	Continuation string

	// Headers carries backend-specific metadata.
	Headers Headers
}

func (r *Response) headers() Headers {
	if r == nil {
		return nil
	}
	return r.Headers
}

// Query is a filter expression with named parameters.
// An empty Text selects every document in the collection.
type Query struct {
	// Text is the filter expression (e.g. "#n = :name AND age > :min").
	Text string

	// Parameters binds ":placeholders" in Text.
	Parameters map[string]any

	// Names binds "#placeholders" in Text.
	Names map[string]string
}

// SQL builds a parameterized query.
func SQL(text string, params map[string]any) Query {
	return Query{Text: text, Parameters: params}
}

// RequestOptions tune single-document operations.
type RequestOptions struct {
	// IfMatch makes the write conditional on the current etag.
	IfMatch string

	// IfNoneMatch makes a read conditional on the etag having changed.
	IfNoneMatch string

	// PartitionKey scopes the operation to one logical partition.
	PartitionKey string

	// SessionToken carries session consistency.
	SessionToken string

	// ConsistencyLevel overrides the account consistency
	// (Strong, BoundedStaleness, Session, Eventual, ConsistentPrefix).
	ConsistencyLevel string

	// PreTriggers and PostTriggers name server-side triggers to run. They
	// are validated and passed through unchanged; the bundled connectors
	// have no triggers and ignore them.
	PreTriggers  []string
	PostTriggers []string
}

// FeedOptions tune queries.
type FeedOptions struct {
	// MaxItemCount is the page size (0 = backend default).
	MaxItemCount int

	// Continuation resumes a previous query.
	Continuation string

	// PartitionKey scopes the query to one logical partition.
	PartitionKey string

	// SessionToken carries session consistency.
	SessionToken string

	// EnableCrossPartitionQuery allows fan-out across partitions.
	EnableCrossPartitionQuery bool
}

// OfferContent is the provisioned capacity of a collection.
type OfferContent struct {
	Throughput int
}

// Offer is the throughput record of one collection.
type Offer struct {
	// ID is the offer's id.
	ID string

	// Self is the offer's own link.
	Self string

	// Resource is the self link of the collection the offer belongs to.
	Resource string

	// Content is nil when the collection has no provisioned throughput.
	Content *OfferContent
}

// Cursor is a server-side query position.
//
// Next returns the next page. A nil slice with a nil error is the
// exhaustion sentinel; a non-nil, possibly empty slice is a page. A page
// whose Response has no continuation is the last one.
type Cursor interface {
	Next(ctx context.Context) ([]Record, *Response, error)
}

// Connector is the network-facing collaborator that owns the session,
// serialization and raw CRUD/query/offer calls. Implementations report
// failures as *ConnectorError.
type Connector interface {
	ReadItem(ctx context.Context, link string, opts *RequestOptions) (Record, *Response, error)
	CreateItem(ctx context.Context, collectionLink string, doc Record, opts *RequestOptions) (Record, *Response, error)
	ReplaceItem(ctx context.Context, link string, doc Record, opts *RequestOptions) (Record, *Response, error)
	UpsertItem(ctx context.Context, collectionLink string, doc Record, opts *RequestOptions) (Record, *Response, error)
	DeleteItem(ctx context.Context, link string, opts *RequestOptions) (*Response, error)
	QueryItems(ctx context.Context, collectionLink string, query Query, opts *FeedOptions) (Cursor, error)

	ReadOfferByCollection(ctx context.Context, collectionLink string) (*Offer, error)
	ReadOffer(ctx context.Context, offerLink string) (*Offer, error)
	ReplaceOffer(ctx context.Context, offerLink string, offer *Offer) (*Response, error)
}
