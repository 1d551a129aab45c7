package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/docket/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filter       string
	Params       string
	Names        map[string]string
	PageSize     int
	Continuation string
	PartitionKey string
	Limit        int
	Page         bool
}

// queryOutput is how query results are printed.
type queryOutput struct {
	Documents    []store.Entity `json:"documents"`
	Continuation string         `json:"continuation,omitempty"`
	Pages        int            `json:"pages,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query documents in the collection",
		Long: `Query documents in the collection.

Without --page, results are collected lazily up to --limit (a negative
limit collects everything). With --page, one page is fetched and its
continuation printed; pass it back with --continuation for the next.

Example:
  docketctl query --filter '#s = :s' --name '#s=status' --params '{":s":"open"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter expression; empty matches every document")
	cmd.Flags().StringVar(&opts.Params, "params", "{}", "filter parameters as a JSON object")
	cmd.Flags().StringToStringVar(&opts.Names, "name", nil, "filter attribute name placeholder (#k=field)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "maximum documents per page")
	cmd.Flags().StringVar(&opts.Continuation, "continuation", "", "resume after a previous page")
	cmd.Flags().StringVar(&opts.PartitionKey, "partition-key", "", "scope the query to one partition")
	cmd.Flags().IntVar(&opts.Limit, "limit", store.DefaultCollectLimit, "maximum documents to collect; negative for all")
	cmd.Flags().BoolVar(&opts.Page, "page", false, "fetch a single page and print its continuation")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(opts.Params), &params); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --params JSON: %v", err))
	}
	query := store.Query{Text: opts.Filter, Parameters: params, Names: opts.Names}
	feed := &store.FeedOptions{
		MaxItemCount: opts.PageSize,
		Continuation: opts.Continuation,
		PartitionKey: opts.PartitionKey,
	}

	ctx := cmd.Context()
	return withSession(ctx, opts.RootOptions, func(s *session) error {
		out := newFormatter(opts.RootOptions, cmd)

		if opts.Page {
			page, err := s.client.QueryPage(ctx, query, feed)
			if err != nil {
				return classify("query failed", err)
			}
			return out.Success(queryOutput{
				Documents:    nonNil(page.Resources),
				Continuation: page.Continuation,
				Pages:        1,
			})
		}

		it, err := s.client.Iterate(ctx, query, feed)
		if err != nil {
			return classify("query failed", err)
		}
		docs, err := store.Collect[store.Entity](ctx, it, opts.Limit)
		if err != nil {
			return classify("query failed", err)
		}
		return out.Success(queryOutput{Documents: nonNil(docs), Pages: it.PagesFetched()})
	})
}

func nonNil(docs []store.Entity) []store.Entity {
	if docs == nil {
		return []store.Entity{}
	}
	return docs
}
