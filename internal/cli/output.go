package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jacentio/docket/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed
	ExitCommandError = 2 // Bad flags, arguments or configuration
	ExitNotFound     = 3 // Document, collection or offer not found
	ExitConflict     = 4 // Conflict, stale etag or exhausted update retries
	ExitBusy         = 5 // Throughput gate not acquired in time
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify wraps a store error with the exit code its kind maps to.
func classify(message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	code := ExitFailure
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrDocumentNotExist),
		errors.Is(err, store.ErrOfferNotFound):
		code = ExitNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrPreconditionFailed),
		errors.Is(err, store.ErrRetriesExhausted):
		code = ExitConflict
	case errors.Is(err, store.ErrInvalidOptions),
		errors.Is(err, store.ErrMissingID),
		errors.Is(err, store.ErrInvalidLink):
		code = ExitCommandError
	}
	return WrapExitError(code, message, err)
}

// Response is the JSON envelope of CLI output.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// Success outputs a result. Text output prints documents as indented JSON.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}

	switch v := data.(type) {
	case string:
		_, err := fmt.Fprintln(f.Writer, v)
		return err
	case int:
		_, err := fmt.Fprintln(f.Writer, v)
		return err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.Writer, string(out))
	return err
}
