// Package stream turns DynamoDB Streams records from collection tables
// into document changes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// Op is the kind of change made to a document.
type Op string

const (
	OpCreate  Op = "create"
	OpReplace Op = "replace"
	OpDelete  Op = "delete"
)

// Change is one document change read from a collection's stream.
type Change struct {
	Op Op

	// Collection is the link of the collection the document belongs to.
	Collection string

	// ID is the document id.
	ID string

	// Document is the document after the change. Nil for deletes, and
	// for streams that don't carry new images.
	Document store.Entity

	// Previous is the document before the change, when the stream view
	// carries old images.
	Previous store.Entity

	// ETag is the version tag of Document, or of Previous for deletes.
	ETag string

	SequenceNumber string
	Time           time.Time
}

// Link returns the changed document's link.
func (c Change) Link() string {
	database, collection, err := store.ParseCollectionLink(c.Collection)
	if err != nil {
		return ""
	}
	return store.DocumentLink(database, collection, c.ID)
}

// Func receives decoded changes.
type Func func(ctx context.Context, change Change) error

// ErrUnknownEvent is returned by Decode for stream events other than
// INSERT, MODIFY and REMOVE.
var ErrUnknownEvent = errors.New("docket: unknown stream event")

// Handler delivers the changes in DynamoDB stream events to a Func.
// Records from tables the registry doesn't route are skipped.
type Handler struct {
	routes    *Registry
	fn        Func
	logger    *zap.Logger
	normalize bool
}

// NewHandler creates a new stream handler. Documents are delivered
// without store metadata unless SetNormalize(false) is called.
func NewHandler(routes *Registry, fn Func, logger *zap.Logger) *Handler {
	if routes == nil {
		routes = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		routes:    routes,
		fn:        fn,
		logger:    logger,
		normalize: true,
	}
}

// SetNormalize toggles metadata stripping of delivered documents.
func (h *Handler) SetNormalize(v bool) {
	h.normalize = v
}

// Handle delivers every record in order and stops at the first failure,
// so the whole batch is retried. It is shaped as an AWS Lambda handler.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.process(ctx, record); err != nil {
			h.logger.Error("failed to process stream record",
				zap.String("eventID", record.EventID),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// HandleBatch is Handle for event sources configured with
// ReportBatchItemFailures. On failure it reports the failed record, so
// the source resumes from it without redelivering earlier records.
func (h *Handler) HandleBatch(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, record := range event.Records {
		if err := h.process(ctx, record); err != nil {
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			h.logger.Warn("stream record failed, reporting batch item failure",
				zap.String("eventID", record.EventID),
				zap.String("sequence", record.Change.SequenceNumber),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: record.Change.SequenceNumber,
			})
			return resp, nil
		}
	}
	return resp, nil
}

func (h *Handler) process(ctx context.Context, record events.DynamoDBEventRecord) error {
	change, ok, err := h.Decode(record)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			h.logger.Warn("skipping stream record",
				zap.String("eventID", record.EventID),
				zap.String("event", record.EventName))
			return nil
		}
		return err
	}
	if !ok {
		h.logger.Debug("skipping record from unrouted table",
			zap.String("eventID", record.EventID),
			zap.String("source", record.EventSourceArn))
		return nil
	}
	if h.fn == nil {
		return nil
	}
	if err := h.fn(ctx, change); err != nil {
		return fmt.Errorf("deliver %s %s: %w", change.Op, change.Link(), err)
	}
	return nil
}

// Decode converts a stream record into a change. It reports false when
// the record's table is not routed.
func (h *Handler) Decode(record events.DynamoDBEventRecord) (Change, bool, error) {
	route, ok := h.routes.Lookup(tableFromARN(record.EventSourceArn))
	if !ok {
		return Change{}, false, nil
	}

	var op Op
	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert:
		op = OpCreate
	case events.DynamoDBOperationTypeModify:
		op = OpReplace
	case events.DynamoDBOperationTypeRemove:
		op = OpDelete
	default:
		return Change{}, false, fmt.Errorf("%w: %q", ErrUnknownEvent, record.EventName)
	}

	newRec, err := decodeImage(record.Change.NewImage)
	if err != nil {
		return Change{}, false, err
	}
	oldRec, err := decodeImage(record.Change.OldImage)
	if err != nil {
		return Change{}, false, err
	}

	change := Change{
		Op:             op,
		Collection:     route.CollectionLink(),
		ID:             keyID(record.Change.Keys),
		SequenceNumber: record.Change.SequenceNumber,
		Time:           record.Change.ApproximateCreationDateTime.Time,
		Document:       h.entity(newRec),
		Previous:       h.entity(oldRec),
	}
	if op == OpDelete {
		change.Document = nil
		change.ETag = oldRec.ETag()
	} else {
		change.ETag = newRec.ETag()
	}
	return change, true, nil
}

func (h *Handler) entity(rec store.Record) store.Entity {
	if rec == nil {
		return nil
	}
	if h.normalize {
		return store.Wash(rec)
	}
	return store.Entity(rec)
}
