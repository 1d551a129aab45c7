// Package cli implements the docketctl command tree.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jacentio/docket/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Backend    string
	Database   string
	Collection string
	Endpoint   string
	BadgerDir  string
	Verbose    bool
	Format     string // "json" | "text"

	// conn, when set, is used instead of the configured backend.
	conn store.Connector
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for docketctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docketctl",
		Short: "docketctl - document store client",
		Long: `Read, query and update documents in a docket collection, and
govern the collection's provisioned throughput.

The backend is "memory", "badger" or "dynamo"; settings come from
--config, then DOCKET_* environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.Backend, "backend", "", "connector backend (memory|badger|dynamo)")
	flags.StringVar(&opts.Database, "db", "", "database id")
	flags.StringVar(&opts.Collection, "collection", "", "collection id")
	flags.StringVar(&opts.Endpoint, "endpoint", "", "remote endpoint override")
	flags.StringVar(&opts.BadgerDir, "badger-dir", "", "badger data directory")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReadCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewWriteCommand(opts, "create"))
	cmd.AddCommand(NewWriteCommand(opts, "upsert"))
	cmd.AddCommand(NewWriteCommand(opts, "replace"))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewThroughputCommand(opts))
	cmd.AddCommand(NewCollectionCommand(opts))

	return cmd
}
