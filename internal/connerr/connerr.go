// Package connerr builds the store.ConnectorError values reported by the
// bundled connectors.
package connerr

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jacentio/docket/store"
)

// New builds a ConnectorError whose message lives only in a structured
// body, the way the remote service reports it. The first body line is the
// message; the second carries an activity id.
func New(status int, code, format string, args ...any) *store.ConnectorError {
	body, _ := json.Marshal(map[string]string{
		"code":    code,
		"message": fmt.Sprintf(format, args...) + "\r\nActivityId: " + uuid.NewString(),
	})
	return &store.ConnectorError{StatusCode: status, Code: code, Body: body}
}

// Wrap builds a ConnectorError around a transport failure.
func Wrap(status int, code string, err error) *store.ConnectorError {
	return &store.ConnectorError{StatusCode: status, Code: code, Message: err.Error(), Err: err}
}

// BadRequest reports malformed input.
func BadRequest(format string, args ...any) *store.ConnectorError {
	return New(http.StatusBadRequest, "BadRequest", format, args...)
}

// NotFound reports a missing document.
func NotFound() *store.ConnectorError {
	return New(http.StatusNotFound, "NotFound", "Entity with the specified id does not exist in the system.")
}

// Conflict reports a create on an existing id.
func Conflict() *store.ConnectorError {
	return New(http.StatusConflict, "Conflict", "Entity with the specified id already exists in the system.")
}

// PreconditionFailed reports a stale If-Match etag.
func PreconditionFailed() *store.ConnectorError {
	return New(http.StatusPreconditionFailed, "PreconditionFailed",
		"Operation cannot be performed because one of the specified precondition is not met.")
}

// MissingID reports a document body without an id.
func MissingID() *store.ConnectorError {
	return BadRequest("The input content is invalid because the required property id is missing")
}
