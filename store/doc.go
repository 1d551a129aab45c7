// Package store provides a typed client over a remote document store.
//
// A [Client] is bound to one collection and talks to the store through a
// [Connector]. The connector owns the wire protocol; the client adds
// document normalization, id-to-link resolution, lazy pagination,
// optimistic-concurrency updates and a throughput governor.
//
// # Documents
//
// Callers work with [Entity] values: schema-free maps carrying a string
// "id". Connectors return [Record] values, which also carry the store's
// metadata fields (_rid, _self, _etag, _attachments, _ts). Unless
// normalization is disabled, every document the client returns has been
// passed through [Wash] and holds no metadata.
//
// # Queries
//
// [Client.Paginate] returns a [Paginator] that fetches one page per call.
// [Client.Iterate] returns an [Iterator] that yields one document at a time
// and fetches pages only as they are consumed:
//
//	it, err := client.Iterate(ctx, store.Query{Text: "status = :s",
//	    Parameters: map[string]any{":s": "open"}}, nil)
//	if err != nil {
//	    return err
//	}
//	first10, err := store.Collect[store.Entity](ctx, it, 10)
//
// [Client.QueryPage] returns a single page and a continuation token that
// resumes the query later, possibly from another process.
//
// # Updates
//
// [Client.Update] deep-merges a partial document onto the stored one. It
// reads the document, merges, and writes back with an If-Match
// precondition, starting over when another writer got there first.
// Nested maps merge key by key; any other value, including arrays,
// replaces what was stored.
//
// # Throughput
//
// [Client.Throughput] returns the collection's [Governor], which reads and
// changes provisioned throughput within [Config.MinThroughput] and
// [Config.MaxThroughput]. Changes made through one client never overlap.
//
// # Errors
//
// Connector failures surface as [*ConnectorError] and match
// [ErrNotFound], [ErrPreconditionFailed] and [ErrConflict] by status.
// The client adds:
//
//   - [ErrMissingID] - the operation needs a document id
//   - [ErrDocumentNotExist] - Update targeted a missing document
//   - [ErrRetriesExhausted] - Update lost every etag race
//   - [ErrInvalidOptions] - request or feed options were rejected
//   - [ErrOfferNotFound], [ErrNoOfferContent] - no usable offer
package store
