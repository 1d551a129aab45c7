package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewThroughputCommand creates the throughput command and its subcommands.
func NewThroughputCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "throughput",
		Short: "Read or change the collection's provisioned throughput",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				v, err := s.client.Throughput().Get(cmd.Context())
				if err != nil {
					return classify("get throughput failed", err)
				}
				return newFormatter(rootOpts, cmd).Success(v)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Set throughput, clamped to the configured bounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseUnits(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				gov := s.client.Throughput()
				ok, err := gov.Set(cmd.Context(), v)
				if err != nil {
					return classify("set throughput failed", err)
				}
				if !ok {
					return NewExitError(ExitBusy, "throughput gate not acquired")
				}
				return newFormatter(rootOpts, cmd).Success(gov.Clamp(v))
			})
		},
	})

	var ceiling int
	increase := &cobra.Command{
		Use:   "increase <delta>",
		Short: "Raise throughput by delta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseUnits(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				v, ok, err := s.client.Throughput().Increase(cmd.Context(), delta, ceiling)
				return report(rootOpts, cmd, "increase throughput failed", v, ok, err)
			})
		},
	}
	increase.Flags().IntVar(&ceiling, "ceiling", 0, "upper bound for the new value; 0 means the configured maximum")
	cmd.AddCommand(increase)

	cmd.AddCommand(&cobra.Command{
		Use:   "decrease <delta>",
		Short: "Lower throughput by delta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := parseUnits(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, func(s *session) error {
				v, ok, err := s.client.Throughput().Decrease(cmd.Context(), delta)
				return report(rootOpts, cmd, "decrease throughput failed", v, ok, err)
			})
		},
	})

	return cmd
}

func report(rootOpts *RootOptions, cmd *cobra.Command, message string, v int, ok bool, err error) error {
	if err != nil {
		return classify(message, err)
	}
	if !ok {
		return NewExitError(ExitBusy, "throughput gate not acquired")
	}
	return newFormatter(rootOpts, cmd).Success(v)
}

func parseUnits(arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil || v < 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid throughput %q: must be a non-negative integer", arg))
	}
	return v, nil
}
