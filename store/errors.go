package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when a document or collection doesn't exist.
	ErrNotFound = errors.New("docket: resource not found")

	// ErrPreconditionFailed is returned when a conditional write presented a stale etag.
	ErrPreconditionFailed = errors.New("docket: precondition failed")

	// ErrConflict is returned when creating a document whose id already exists.
	ErrConflict = errors.New("docket: resource already exists")

	// ErrMissingID is returned when an operation requires a document id and none was given.
	ErrMissingID = errors.New("docket: document is missing property id")

	// ErrDocumentNotExist is returned by Update when the target document doesn't exist.
	ErrDocumentNotExist = errors.New("docket: document does not exist")

	// ErrRetriesExhausted is returned by Update when every attempt lost an etag race.
	ErrRetriesExhausted = errors.New("docket: update retries exhausted")

	// ErrInvalidOptions is returned when request or feed options fail validation.
	ErrInvalidOptions = errors.New("docket: invalid options")

	// ErrInvalidLink is returned when a resource link can't be parsed.
	ErrInvalidLink = errors.New("docket: invalid resource link")

	// ErrOfferNotFound is returned when no offer exists for the collection.
	ErrOfferNotFound = errors.New("docket: offer not found for collection")

	// ErrNoOfferContent is returned when the offer carries no throughput content.
	ErrNoOfferContent = errors.New("docket: offer has no content")

	// ErrIteratorDone is returned by Iterator.Next once the query is exhausted.
	ErrIteratorDone = errors.New("docket: no more items in iterator")

	// ErrNoMorePages is returned by Paginator.NextPage once the query is exhausted.
	ErrNoMorePages = errors.New("docket: no more pages")
)

// ConnectorError is a failure reported by a Connector.
type ConnectorError struct {
	// StatusCode is the HTTP-equivalent status (404, 409, 412, 429, 5xx...).
	StatusCode int

	// Code is the backend's error code, if any.
	Code string

	// Message is the human readable message.
	Message string

	// Body is the raw structured error body, if any.
	Body []byte

	// Err is the underlying transport error.
	Err error
}

func (e *ConnectorError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("docket: status %d: %s", e.StatusCode, msg)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// Is matches the status-class sentinels.
func (e *ConnectorError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrPreconditionFailed:
		return e.StatusCode == http.StatusPreconditionFailed
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// NewConnectorError builds a ConnectorError for status, wrapping cause.
func NewConnectorError(status int, message string, cause error) *ConnectorError {
	return &ConnectorError{StatusCode: status, Message: message, Err: cause}
}

// StatusCode extracts the status code from err, or 0 if err isn't a ConnectorError.
func StatusCode(err error) int {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}

// IsNotFound reports whether err signals a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPreconditionFailed reports whether err signals a stale etag.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

// ValidationError describes invalid caller input detected before any I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("docket: invalid value for %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOptions
}

// transformError fills in a missing message from the first line of the
// structured error body's "message" field. Anything else passes through.
func transformError(err error) error {
	var ce *ConnectorError
	if !errors.As(err, &ce) || ce.Message != "" || len(ce.Body) == 0 {
		return err
	}

	var body struct {
		Message string `json:"message"`
	}
	if jerr := json.Unmarshal(ce.Body, &body); jerr != nil || body.Message == "" {
		return err
	}

	msg, _, _ := strings.Cut(body.Message, "\r\n")
	msg, _, _ = strings.Cut(msg, "\n")
	ce.Message = msg
	return err
}
