// Package badgerstore implements a store.Connector on an embedded Badger
// database. Documents are kept as JSON under per-collection key prefixes,
// so queries walk keys in id order.
package badgerstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacentio/docket/internal/connerr"
	"github.com/jacentio/docket/internal/filter"
	"github.com/jacentio/docket/internal/rid"
	"github.com/jacentio/docket/store"
)

// DefaultPageSize is used when a query doesn't set MaxItemCount.
const DefaultPageSize = 100

// maxTxnRetries bounds how often a write transaction is re-run after a
// badger conflict.
const maxTxnRetries = 5

var generationKey = []byte("m/generation")

type collectionMeta struct {
	Database   string `json:"database"`
	Name       string `json:"name"`
	Generation int    `json:"generation"`
	OfferID    string `json:"offerId"`
}

type offerDoc struct {
	ID         string `json:"id"`
	Resource   string `json:"resource"`
	Throughput *int   `json:"throughput,omitempty"`
}

func (o *offerDoc) toOffer() *store.Offer {
	out := &store.Offer{ID: o.ID, Self: store.OfferLink(o.ID), Resource: o.Resource}
	if o.Throughput != nil {
		out.Content = &store.OfferContent{Throughput: *o.Throughput}
	}
	return out
}

// Store is a Badger-backed document store.
type Store struct {
	db     *badger.DB
	logger *zap.Logger

	now               func() time.Time
	initialThroughput int
	autoCreate        bool
	partitionKeyAttr  string
}

var _ store.Connector = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithLogger routes badger's own logs through logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for _ts stamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithInitialThroughput sets the throughput of auto-created collections.
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

func newStore(opts []Option) *Store {
	s := &Store{
		logger:            zap.NewNop(),
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

// Open opens (or creates) a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := newStore(opts)
	bopts := badger.DefaultOptions(filepath.Clean(dir)).
		WithLogger(badgerLogger{s.logger.Sugar()}).
		WithValueLogFileSize(1 << 26)
	return s.open(bopts)
}

// OpenInMemory opens a store that keeps everything in memory.
func OpenInMemory(opts ...Option) (*Store, error) {
	s := newStore(opts)
	bopts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(badgerLogger{s.logger.Sugar()})
	return s.open(bopts)
}

func (s *Store) open(bopts badger.Options) (*Store, error) {
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	s.db = db
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCollection creates a collection with the given throughput. Zero
// throughput creates an offer without content.
func (s *Store) CreateCollection(database, name string, throughput int) error {
	link := store.CollectionLink(database, name)
	return s.update(func(txn *badger.Txn) error {
		if _, err := getJSON[collectionMeta](txn, collKey(link)); err == nil {
			return connerr.New(http.StatusConflict, "Conflict", "Collection %s already exists", link)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		_, err := s.createCollection(txn, database, name, throughput)
		return err
	})
}

// DeleteCollection removes a collection, its documents and its offer.
func (s *Store) DeleteCollection(database, name string) error {
	link := store.CollectionLink(database, name)
	meta, err := view(s, func(txn *badger.Txn) (*collectionMeta, error) {
		return getJSON[collectionMeta](txn, collKey(link))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return connerr.New(http.StatusNotFound, "NotFound", "Collection %s does not exist", link)
	}
	if err != nil {
		return connerr.Wrap(http.StatusInternalServerError, "InternalServerError", err)
	}

	if err := s.db.DropPrefix(docPrefix(link)); err != nil {
		return connerr.Wrap(http.StatusInternalServerError, "InternalServerError", err)
	}
	return s.update(func(txn *badger.Txn) error {
		if err := txn.Delete(collKey(link)); err != nil {
			return err
		}
		return txn.Delete(offerKey(meta.OfferID))
	})
}

func (s *Store) createCollection(txn *badger.Txn, database, name string, throughput int) (*collectionMeta, error) {
	gen, err := generation(txn)
	if err != nil {
		return nil, err
	}
	gen++
	if err := txn.Set(generationKey, []byte(strconv.Itoa(gen))); err != nil {
		return nil, err
	}

	link := store.CollectionLink(database, name)
	meta := &collectionMeta{
		Database:   database,
		Name:       name,
		Generation: gen,
		OfferID:    rid.Offer(link + "#" + strconv.Itoa(gen)),
	}
	offer := &offerDoc{ID: meta.OfferID, Resource: link}
	if throughput > 0 {
		offer.Throughput = &throughput
	}
	if err := setJSON(txn, collKey(link), meta); err != nil {
		return nil, err
	}
	if err := setJSON(txn, offerKey(offer.ID), offer); err != nil {
		return nil, err
	}
	return meta, nil
}

// collection resolves a collection link inside txn, auto-creating it when
// allowed and create is set.
func (s *Store) collection(txn *badger.Txn, link string, create bool) (*collectionMeta, error) {
	database, name, err := store.ParseCollectionLink(link)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}
	meta, err := getJSON[collectionMeta](txn, collKey(link))
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	if create && s.autoCreate {
		return s.createCollection(txn, database, name, s.initialThroughput)
	}
	return nil, connerr.New(http.StatusNotFound, "NotFound", "Collection %s does not exist", link)
}

func (s *Store) document(txn *badger.Txn, link string, create bool) (*collectionMeta, string, error) {
	database, name, id, err := store.ParseDocumentLink(link)
	if err != nil {
		return nil, "", connerr.BadRequest("%v", err)
	}
	meta, err := s.collection(txn, store.CollectionLink(database, name), create)
	if err != nil {
		return nil, "", err
	}
	return meta, id, nil
}

func (s *Store) stamp(meta *collectionMeta, doc store.Record) store.Record {
	out := store.StripMetadata(store.Entity(doc))
	id := out.ID()
	out[store.FieldRID] = rid.Document(meta.Database, meta.Name, id)
	out[store.FieldSelf] = store.DocumentLink(meta.Database, meta.Name, id)
	out[store.FieldETag] = `"` + uuid.NewString() + `"`
	out[store.FieldAttachments] = "attachments/"
	out[store.FieldTimestamp] = s.now().Unix()
	return out
}

// write stores doc and returns it as a reader would see it.
func write(txn *badger.Txn, key []byte, doc store.Record) (store.Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, connerr.BadRequest("The input content is invalid: %v", err)
	}
	if err := txn.Set(key, data); err != nil {
		return nil, err
	}
	var out store.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func response(status int, rec store.Record) *store.Response {
	resp := &store.Response{
		StatusCode: status,
		Headers:    store.Headers{store.HeaderRequestCharge: "1"},
	}
	if rec != nil {
		resp.ETag = rec.ETag()
		resp.Headers[store.HeaderETag] = resp.ETag
	}
	return resp
}

func statusOf(err error) *store.Response {
	if code := store.StatusCode(err); code != 0 {
		return response(code, nil)
	}
	return nil
}

// ReadItem implements store.Connector.
func (s *Store) ReadItem(ctx context.Context, link string, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var out store.Record
	var resp *store.Response
	err := s.update(func(txn *badger.Txn) error {
		meta, id, err := s.document(txn, link, true)
		if err != nil {
			return err
		}
		doc, err := getJSON[store.Record](txn, docKey(meta, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return connerr.NotFound()
		}
		if err != nil {
			return err
		}
		if opts != nil && opts.IfNoneMatch != "" && opts.IfNoneMatch == doc.ETag() {
			resp = response(http.StatusNotModified, *doc)
			return nil
		}
		out, resp = *doc, response(http.StatusOK, *doc)
		return nil
	})
	if err != nil {
		return nil, statusOf(err), err
	}
	return out, resp, nil
}

// CreateItem implements store.Connector.
func (s *Store) CreateItem(ctx context.Context, collectionLink string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	return s.put(ctx, collectionLink, doc, func(cur store.Record) (int, error) {
		if cur != nil {
			return 0, connerr.Conflict()
		}
		return http.StatusCreated, nil
	})
}

// UpsertItem implements store.Connector.
func (s *Store) UpsertItem(ctx context.Context, collectionLink string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	return s.put(ctx, collectionLink, doc, func(cur store.Record) (int, error) {
		if cur == nil {
			return http.StatusCreated, nil
		}
		if opts != nil && opts.IfMatch != "" && opts.IfMatch != cur.ETag() {
			return 0, connerr.PreconditionFailed()
		}
		return http.StatusOK, nil
	})
}

// ReplaceItem implements store.Connector.
func (s *Store) ReplaceItem(ctx context.Context, link string, doc store.Record, opts *store.RequestOptions) (store.Record, *store.Response, error) {
	database, name, id, err := store.ParseDocumentLink(link)
	if err != nil {
		return nil, nil, connerr.BadRequest("%v", err)
	}
	if doc.ID() != "" && doc.ID() != id {
		return nil, nil, connerr.BadRequest("The id in the body doesn't match the id in the link")
	}
	return s.put(ctx, store.CollectionLink(database, name), doc, func(cur store.Record) (int, error) {
		if cur == nil {
			return 0, connerr.NotFound()
		}
		if opts != nil && opts.IfMatch != "" && opts.IfMatch != cur.ETag() {
			return 0, connerr.PreconditionFailed()
		}
		return http.StatusOK, nil
	})
}

// put writes doc after check approves the current version, which is nil
// when the document doesn't exist.
func (s *Store) put(ctx context.Context, collectionLink string, doc store.Record, check func(cur store.Record) (int, error)) (store.Record, *store.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if doc.ID() == "" {
		return nil, nil, connerr.MissingID()
	}

	var out store.Record
	var status int
	err := s.update(func(txn *badger.Txn) error {
		meta, err := s.collection(txn, collectionLink, true)
		if err != nil {
			return err
		}
		key := docKey(meta, doc.ID())

		var cur store.Record
		existing, err := getJSON[store.Record](txn, key)
		switch {
		case err == nil:
			cur = *existing
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if status, err = check(cur); err != nil {
			return err
		}
		out, err = write(txn, key, s.stamp(meta, doc))
		return err
	})
	if err != nil {
		return nil, statusOf(err), err
	}
	return out, response(status, out), nil
}

// DeleteItem implements store.Connector.
func (s *Store) DeleteItem(ctx context.Context, link string, opts *store.RequestOptions) (*store.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := s.update(func(txn *badger.Txn) error {
		meta, id, err := s.document(txn, link, true)
		if err != nil {
			return err
		}
		key := docKey(meta, id)
		cur, err := getJSON[store.Record](txn, key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return connerr.NotFound()
		}
		if err != nil {
			return err
		}
		if opts != nil && opts.IfMatch != "" && opts.IfMatch != cur.ETag() {
			return connerr.PreconditionFailed()
		}
		return txn.Delete(key)
	})
	if err != nil {
		return statusOf(err), err
	}
	return response(http.StatusNoContent, nil), nil
}

// QueryItems implements store.Connector. Documents are returned in id order.
func (s *Store) QueryItems(ctx context.Context, collectionLink string, query store.Query, opts *store.FeedOptions) (store.Cursor, error) {
	expr, err := filter.Compile(query.Text, query.Names)
	if err != nil {
		return nil, connerr.BadRequest("Syntax error: %v", err)
	}
	if err := s.update(func(txn *badger.Txn) error {
		_, err := s.collection(txn, collectionLink, true)
		return err
	}); err != nil {
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
			after, err := base64.RawURLEncoding.DecodeString(opts.Continuation)
			if err != nil {
				return nil, connerr.BadRequest("Invalid continuation token")
			}
			cur.after = string(after)
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

func (c *cursor) Next(ctx context.Context) ([]store.Record, *store.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if c.done {
		return nil, nil, nil
	}

	s := c.store
	page := []store.Record{}
	var last string
	more := false

	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := s.collection(txn, c.link, false)
		if err != nil {
			return err
		}
		prefix := docPrefixOf(meta)
		start := prefix
		if c.after != "" {
			start = append(append([]byte{}, prefix...), c.after+"\x00"...)
		}

		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			var doc store.Record
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &doc)
			}); err != nil {
				return err
			}
			if c.partitionKey != "" && fmt.Sprint(doc[s.partitionKeyAttr]) != c.partitionKey {
				continue
			}
			ok, err := c.expr.Match(map[string]any(doc), c.params)
			if err != nil {
				return connerr.BadRequest("%v", err)
			}
			if !ok {
				continue
			}
			if len(page) == c.pageSize {
				more = true
				break
			}
			page = append(page, doc)
			last = doc.ID()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	resp := response(http.StatusOK, nil)
	resp.Headers[store.HeaderItemCount] = strconv.Itoa(len(page))
	if more {
		c.after = last
		resp.Continuation = base64.RawURLEncoding.EncodeToString([]byte(last))
		resp.Headers[store.HeaderContinuation] = resp.Continuation
	} else {
		c.done = true
	}
	return page, resp, nil
}

// ReadOfferByCollection implements store.Connector.
func (s *Store) ReadOfferByCollection(ctx context.Context, collectionLink string) (*store.Offer, error) {
	var out *store.Offer
	err := s.update(func(txn *badger.Txn) error {
		meta, err := s.collection(txn, collectionLink, true)
		if err != nil {
			return err
		}
		offer, err := getJSON[offerDoc](txn, offerKey(meta.OfferID))
		if err != nil {
			return err
		}
		out = offer.toOffer()
		return nil
	})
	return out, err
}

// ReadOffer implements store.Connector.
func (s *Store) ReadOffer(ctx context.Context, offerLink string) (*store.Offer, error) {
	id, err := store.ParseOfferLink(offerLink)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}
	offer, err := view(s, func(txn *badger.Txn) (*offerDoc, error) {
		return getJSON[offerDoc](txn, offerKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, connerr.New(http.StatusNotFound, "NotFound", "Offer %s does not exist", offerLink)
	}
	if err != nil {
		return nil, connerr.Wrap(http.StatusInternalServerError, "InternalServerError", err)
	}
	return offer.toOffer(), nil
}

// ReplaceOffer implements store.Connector.
func (s *Store) ReplaceOffer(ctx context.Context, offerLink string, offer *store.Offer) (*store.Response, error) {
	if offer == nil || offer.Content == nil {
		return nil, connerr.BadRequest("Offer content is required")
	}
	id, err := store.ParseOfferLink(offerLink)
	if err != nil {
		return nil, connerr.BadRequest("%v", err)
	}

	err = s.update(func(txn *badger.Txn) error {
		cur, err := getJSON[offerDoc](txn, offerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return connerr.New(http.StatusNotFound, "NotFound", "Offer %s does not exist", offerLink)
		}
		if err != nil {
			return err
		}
		v := offer.Content.Throughput
		cur.Throughput = &v
		return setJSON(txn, offerKey(id), cur)
	})
	if err != nil {
		return statusOf(err), err
	}
	return response(http.StatusOK, nil), nil
}

// update runs fn in a read-write transaction, re-running it when badger
// reports a conflict with a concurrent transaction. Failures that aren't
// already connector errors are reported as 500s.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("badger transaction conflict, retrying", zap.Int("attempt", i+1))
	}
	if err == nil {
		return nil
	}
	var ce *store.ConnectorError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, badger.ErrConflict) {
		return connerr.New(http.StatusTooManyRequests, "TooManyRequests", "Request rate is large: %v", err)
	}
	return connerr.Wrap(http.StatusInternalServerError, "InternalServerError", err)
}

func view[T any](s *Store, fn func(txn *badger.Txn) (T, error)) (T, error) {
	var out T
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = fn(txn)
		return err
	})
	return out, err
}

func getJSON[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var out T
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &out)
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func generation(txn *badger.Txn) (int, error) {
	item, err := txn.Get(generationKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(v))
}

func collKey(link string) []byte {
	return []byte("c/" + link)
}

func offerKey(id string) []byte {
	return []byte("o/" + id)
}

func docPrefix(link string) []byte {
	return []byte("d/" + link + "/")
}

func docPrefixOf(meta *collectionMeta) []byte {
	return docPrefix(store.CollectionLink(meta.Database, meta.Name))
}

func docKey(meta *collectionMeta, id string) []byte {
	return append(docPrefixOf(meta), id...)
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
