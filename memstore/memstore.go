// Package memstore implements an in-memory store.Connector with etag,
// continuation and offer semantics. It backs tests and local development.
package memstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/docket/internal/connerr"
	"github.com/jacentio/docket/internal/filter"
	"github.com/jacentio/docket/internal/merge"
	"github.com/jacentio/docket/internal/rid"
	"github.com/jacentio/docket/store"
)

// DefaultPageSize is used when a query doesn't set MaxItemCount.
const DefaultPageSize = 100

type collection struct {
	database   string
	name       string
	generation int
	docs       map[string]store.Record
	offer      *store.Offer
}

// Store is an in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	offers      map[string]*collection
	generation  int

	now               func() time.Time
	initialThroughput int
	autoCreate        bool
	partitionKeyAttr  string
}

var _ store.Connector = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithClock overrides the clock used for _ts stamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithInitialThroughput sets the throughput of auto-created collections.
// Zero creates collections without provisioned throughput.
func WithInitialThroughput(v int) Option {
	return func(s *Store) {
		s.initialThroughput = v
	}
}

// WithoutAutoCreate requires collections to be created with CreateCollection.
func WithoutAutoCreate() Option {
	return func(s *Store) {
		s.autoCreate = false
	}
}

// WithPartitionKeyAttr sets the field partition-scoped queries filter on.
func WithPartitionKeyAttr(attr string) Option {
	return func(s *Store) {
		if attr != "" {
			s.partitionKeyAttr = attr
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections:       make(map[string]*collection),
		offers:            make(map[string]*collection),
		now:               func() time.Time { return time.Now().UTC() },
		initialThroughput: 400,
		autoCreate:        true,
		partitionKeyAttr:  "partitionKey",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCollection creates a collection with the given throughput. Zero
// throughput creates an offer without content.
func (s *Store) CreateCollection(database, name string, throughput int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link := store.CollectionLink(database, name)
	if _, ok := s.collections[link]; ok {
		return connerr.New(http.StatusConflict, "Conflict", "Collection %s already exists", link)
	}
	s.createLocked(database, name, throughput)
	return nil
}

// DeleteCollection removes a collection, its documents and its offer.
func (s *Store) DeleteCollection(database, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link := store.CollectionLink(database, name)
	c, ok := s.collections[link]
	if !ok {
		return connerr.New(http.StatusNotFound, "NotFound", "Collection %s does not exist", link)
	}
	delete(s.collections, link)
	delete(s.offers, c.offer.ID)
	return nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(database, name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[store.CollectionLink(database, name)]; ok {
		return len(c.docs)
	}
	return 0
}

func (s *Store) createLocked(database, name string, throughput int) *collection {
	s.generation++
	link := store.CollectionLink(database, name)
	id := rid.Offer(link + "#" + strconv.Itoa(s.generation))

	offer := &store.Offer{ID: id, Self: store.OfferLink(id), Resource: link}
	if throughput > 0 {
		offer.Content = &store.OfferContent{Throughput: throughput}
	}
	c := &collection{
		database:   database,
		name:       name,
		generation: s.generation,
		docs:       make(map[string]store.Record),
		offer:      offer,
	}
	s.collections[link] = c
	s.offers[id] = c
	return c
}

// collectionLocked resolves a collection link, auto-creating it when allowed.
// The caller must hold the write lock when create is true.
func (s *Store) collectionLocked(link string, create bool) (*collection, error) {
	database, name, err := store.ParseCollectionLink(link)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}
	if c, ok := s.collections[link]; ok {
		return c, nil
	}
	if create && s.autoCreate {
		return s.createLocked(database, name, s.initialThroughput), nil
	}
	return nil, connerr.New(http.StatusNotFound, "NotFound", "Collection %s does not exist", link)
}

func (s *Store) documentLocked(link string, create bool) (*collection, string, error) {
	database, name, id, err := store.ParseDocumentLink(link)
	if err != nil {
		return nil, "", connerr.BadRequest("%v", err)
	}
	c, err := s.collectionLocked(store.CollectionLink(database, name), create)
	if err != nil {
		return nil, "", err
	}
	return c, id, nil
}

// stamp copies doc without metadata and adds fresh store metadata.
func (s *Store) stamp(c *collection, doc store.Record) store.Record {
	out := store.Record(merge.Clone(map[string]any(store.StripMetadata(store.Entity(doc)))).(map[string]any))
	id := out.ID()
	out[store.FieldRID] = rid.Document(c.database, c.name, id)
	out[store.FieldSelf] = store.DocumentLink(c.database, c.name, id)
	out[store.FieldETag] = `"` + uuid.NewString() + `"`
	out[store.FieldAttachments] = "attachments/"
	out[store.FieldTimestamp] = s.now().Unix()
	return out
}

func clone(r store.Record) store.Record {
	return store.Record(merge.Clone(map[string]any(r)).(map[string]any))
}

func response(status int, rec store.Record) *store.Response {
	resp := &store.Response{
		StatusCode: status,
		Headers:    store.Headers{store.HeaderRequestCharge: "1", "x-ms-activity-id": uuid.NewString()},
	}
	if rec != nil {
		resp.ETag = rec.ETag()
		resp.Headers[store.HeaderETag] = resp.ETag
	}
	return resp
}

func checkID(doc store.Record) error {
	if doc.ID() == "" {
		return connerr.MissingID()
	}
	return nil
}

// ReadItem implements store.Connector.
func (s *Store) ReadItem(ctx context.Context, link string, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, id, err := s.documentLocked(link, true)
	if err != nil {
		return nil, nil, err
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, response(http.StatusNotFound, nil), connerr.NotFound()
	}
	if opts != nil && opts.IfNoneMatch != "" && opts.IfNoneMatch == doc.ETag() {
		return nil, response(http.StatusNotModified, doc), nil
	}
	return clone(doc), response(http.StatusOK, doc), nil
}

// CreateItem implements store.Connector.
func (s *Store) CreateItem(ctx context.Context, collectionLink string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	if err := checkID(doc); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collectionLocked(collectionLink, true)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := c.docs[doc.ID()]; ok {
		return nil, response(http.StatusConflict, nil), connerr.Conflict()
	}

	stored := s.stamp(c, doc)
	c.docs[stored.ID()] = stored
	return clone(stored), response(http.StatusCreated, stored), nil
}

// ReplaceItem implements store.Connector.
func (s *Store) ReplaceItem(ctx context.Context, link string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	if err := checkID(doc); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, id, err := s.documentLocked(link, true)
	if err != nil {
		return nil, nil, err
	}
	if doc.ID() != id {
		return nil, nil, connerr.BadRequest("The id in the body doesn't match the id in the link")
	}
	cur, ok := c.docs[id]
	if !ok {
		return nil, response(http.StatusNotFound, nil), connerr.NotFound()
	}
	if opts != nil && opts.IfMatch != "" && opts.IfMatch != cur.ETag() {
		return nil, response(http.StatusPreconditionFailed, nil), connerr.PreconditionFailed()
	}

	stored := s.stamp(c, doc)
	c.docs[id] = stored
	return clone(stored), response(http.StatusOK, stored), nil
}

// UpsertItem implements store.Connector.
func (s *Store) UpsertItem(ctx context.Context, collectionLink string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	if err := checkID(doc); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collectionLocked(collectionLink, true)
	if err != nil {
		return nil, nil, err
	}

	status := http.StatusCreated
	if cur, ok := c.docs[doc.ID()]; ok {
		if opts != nil && opts.IfMatch != "" && opts.IfMatch != cur.ETag() {
			return nil, response(http.StatusPreconditionFailed, nil), connerr.PreconditionFailed()
		}
		status = http.StatusOK
	}

	stored := s.stamp(c, doc)
	c.docs[stored.ID()] = stored
	return clone(stored), response(status, stored), nil
}

// DeleteItem implements store.Connector.
func (s *Store) DeleteItem(ctx context.Context, link string, opts *store.RequestOptions) (*store.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, id, err := s.documentLocked(link, true)
	if err != nil {
		return nil, err
	}
	cur, ok := c.docs[id]
	if !ok {
		return response(http.StatusNotFound, nil), connerr.NotFound()
	}
	if opts != nil && opts.IfMatch != "" && opts.IfMatch != cur.ETag() {
		return response(http.StatusPreconditionFailed, nil), connerr.PreconditionFailed()
	}

	delete(c.docs, id)
	return response(http.StatusNoContent, nil), nil
}

// QueryItems implements store.Connector. Documents are returned in id order.
func (s *Store) QueryItems(ctx context.Context, collectionLink string, query store.Query, opts *store.FeedOptions) (store.Cursor, error) {
	expr, err := filter.Compile(query.Text, query.Names)
	if err != nil {
		return nil, connerr.BadRequest("Syntax error: %v", err)
	}

	s.mu.Lock()
	_, err = s.collectionLocked(collectionLink, true)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	cur := &cursor{
		store:    s,
		link:     collectionLink,
		expr:     expr,
		params:   query.Parameters,
		pageSize: DefaultPageSize,
	}
	if opts != nil {
		if opts.MaxItemCount > 0 {
			cur.pageSize = opts.MaxItemCount
		}
		cur.partitionKey = opts.PartitionKey
		if opts.Continuation != "" {
			after, err := DecodeContinuation(opts.Continuation)
			if err != nil {
				return nil, connerr.BadRequest("Invalid continuation token")
			}
			cur.after = after
		}
	}
	return cur, nil
}

type cursor struct {
	store        *Store
	link         string
	expr         *filter.Expr
	params       map[string]any
	pageSize     int
	partitionKey string
	after        string
	done         bool
}

// Next returns up to pageSize matching documents after the last returned id.
func (c *cursor) Next(ctx context.Context) ([]store.Record, *store.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if c.done {
		return nil, nil, nil
	}

	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, err := s.collectionLocked(c.link, false)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(coll.docs))
	for id := range coll.docs {
		if id > c.after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := []store.Record{}
	var last string
	more := false
	for _, id := range ids {
		doc := coll.docs[id]
		if c.partitionKey != "" && fmt.Sprint(doc[s.partitionKeyAttr]) != c.partitionKey {
			continue
		}
		ok, err := c.expr.Match(map[string]any(doc), c.params)
		if err != nil {
			return nil, nil, connerr.BadRequest("%v", err)
		}
		if !ok {
			continue
		}
		if len(page) == c.pageSize {
			more = true
			break
		}
		page = append(page, clone(doc))
		last = id
	}

	resp := response(http.StatusOK, nil)
	resp.Headers[store.HeaderItemCount] = strconv.Itoa(len(page))
	if more {
		c.after = last
		resp.Continuation = EncodeContinuation(last)
		resp.Headers[store.HeaderContinuation] = resp.Continuation
	} else {
		c.done = true
	}
	return page, resp, nil
}

// ReadOfferByCollection implements store.Connector.
func (s *Store) ReadOfferByCollection(ctx context.Context, collectionLink string) (*store.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collectionLocked(collectionLink, true)
	if err != nil {
		return nil, err
	}
	return copyOffer(c.offer), nil
}

// ReadOffer implements store.Connector.
func (s *Store) ReadOffer(ctx context.Context, offerLink string) (*store.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.offerLocked(offerLink)
	if err != nil {
		return nil, err
	}
	return copyOffer(c.offer), nil
}

// ReplaceOffer implements store.Connector.
func (s *Store) ReplaceOffer(ctx context.Context, offerLink string, offer *store.Offer) (*store.Response, error) {
	if offer == nil || offer.Content == nil {
		return nil, connerr.BadRequest("Offer content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.offerLocked(offerLink)
	if err != nil {
		return nil, err
	}
	c.offer.Content = &store.OfferContent{Throughput: offer.Content.Throughput}
	return response(http.StatusOK, nil), nil
}

func (s *Store) offerLocked(offerLink string) (*collection, error) {
	id, err := store.ParseOfferLink(offerLink)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}
	c, ok := s.offers[id]
	if !ok {
		return nil, connerr.New(http.StatusNotFound, "NotFound", "Offer %s does not exist", offerLink)
	}
	return c, nil
}

func copyOffer(o *store.Offer) *store.Offer {
	out := *o
	if o.Content != nil {
		content := *o.Content
		out.Content = &content
	}
	return &out
}

// EncodeContinuation encodes the last returned id as an opaque token.
func EncodeContinuation(lastID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastID))
}

// DecodeContinuation decodes a token produced by EncodeContinuation.
func DecodeContinuation(token string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
