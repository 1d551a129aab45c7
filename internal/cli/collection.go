package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCollectionCommand creates the collection command and its subcommands.
func NewCollectionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Create or delete the configured collection",
	}

	var throughput int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				if err := s.createCollection(cmd.Context(), throughput); err != nil {
					return classify("create collection failed", err)
				}
				return newFormatter(rootOpts, cmd).Success(fmt.Sprintf("created %s", s.client.CollectionLink()))
			})
		},
	}
	create.Flags().IntVar(&throughput, "throughput", 400, "initial throughput; 0 for on-demand")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete the collection and its documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				if err := s.deleteCollection(cmd.Context()); err != nil {
					return classify("delete collection failed", err)
				}
				return newFormatter(rootOpts, cmd).Success(fmt.Sprintf("deleted %s", s.client.CollectionLink()))
			})
		},
	})

	return cmd
}
