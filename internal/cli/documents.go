package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/docket/store"
)

// RequestFlags holds the request options shared by document commands.
type RequestFlags struct {
	IfMatch      string
	PartitionKey string
}

func (f *RequestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.IfMatch, "if-match", "", "only write if the document's etag matches")
	cmd.Flags().StringVar(&f.PartitionKey, "partition-key", "", "partition key value")
}

func (f *RequestFlags) options() *store.RequestOptions {
	if f.IfMatch == "" && f.PartitionKey == "" {
		return nil
	}
	return &store.RequestOptions{IfMatch: f.IfMatch, PartitionKey: f.PartitionKey}
}

// documentOutput is how a single-document result is printed.
type documentOutput struct {
	Document store.Entity `json:"document,omitempty"`
	ETag     string       `json:"etag,omitempty"`
	Status   int          `json:"status,omitempty"`
}

func parseDocument(data string) (store.Entity, error) {
	var doc store.Entity
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --data JSON: %v", err))
	}
	if doc == nil {
		return nil, NewExitError(ExitCommandError, "--data must be a JSON object")
	}
	return doc, nil
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	var req RequestFlags

	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Read a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				res, err := s.client.Read(cmd.Context(), args[0], req.options())
				if err != nil {
					return classify("read failed", err)
				}
				if res.Resource == nil {
					return NewExitError(ExitNotFound, fmt.Sprintf("document %q not found", args[0]))
				}
				return newFormatter(rootOpts, cmd).Success(documentOutput{Document: res.Resource, ETag: res.ETag})
			})
		},
	}
	req.bind(cmd)
	return cmd
}

// NewWriteCommand creates the create, upsert or replace command.
func NewWriteCommand(rootOpts *RootOptions, verb string) *cobra.Command {
	var (
		req  RequestFlags
		data string
	)

	cmd := &cobra.Command{
		Use:   verb + " --data '<json>'",
		Short: map[string]string{
			"create":  "Create a document that must not exist yet",
			"upsert":  "Create a document or replace it if it exists",
			"replace": "Replace an existing document",
		}[verb],
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDocument(data)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				var res *store.Result
				switch verb {
				case "create":
					res, err = s.client.Create(cmd.Context(), doc, req.options())
				case "upsert":
					res, err = s.client.Upsert(cmd.Context(), doc, req.options())
				default:
					res, err = s.client.Replace(cmd.Context(), doc, req.options())
				}
				if err != nil {
					return classify(verb+" failed", err)
				}
				return newFormatter(rootOpts, cmd).Success(documentOutput{
					Document: res.Resource,
					ETag:     res.ETag,
					Status:   res.StatusCode,
				})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "document as a JSON object")
	_ = cmd.MarkFlagRequired("data")
	req.bind(cmd)
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		req  RequestFlags
		data string
	)

	cmd := &cobra.Command{
		Use:   "update --data '<json>'",
		Short: "Merge a partial document into an existing one",
		Long: `Merge a partial document into an existing one.

The partial must carry the document id. Nested objects merge, arrays and
scalars replace. Concurrent writers are handled by re-reading and retrying.

Example:
  docketctl update --data '{"id":"u1","address":{"city":"Porto"}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := parseDocument(data)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				res, err := s.client.Update(cmd.Context(), partial, req.options())
				if err != nil {
					return classify("update failed", err)
				}
				return newFormatter(rootOpts, cmd).Success(documentOutput{Document: res.Resource, ETag: res.ETag})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "partial document as a JSON object")
	_ = cmd.MarkFlagRequired("data")
	cmd.Flags().StringVar(&req.PartitionKey, "partition-key", "", "partition key value")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var req RequestFlags

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				if _, err := s.client.Delete(cmd.Context(), args[0], req.options()); err != nil {
					return classify("delete failed", err)
				}
				return newFormatter(rootOpts, cmd).Success(fmt.Sprintf("deleted %s", args[0]))
			})
		},
	}
	req.bind(cmd)
	return cmd
}
