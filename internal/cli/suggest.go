package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/osq/internal/engine"
)

// SuggestResult holds suggested property values.
type SuggestResult struct {
	Values []string `json:"values"`
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <request>",
		Short: "Suggest property values for a typed prefix",
		Long: `Suggest values of a string property whose tokens start with a prefix,
most frequent first. Fuzzy input tolerates a typo in the last token.
Use "-" to read the request from standard input.

Example:
  osq suggest ./names.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSuggest(opts *RootOptions, path string, cmd *cobra.Command) (err error) {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", closeErr)
		}
	}()

	var req engine.SuggestRequest
	if err := s.decodeRequest(cmd, path, &req); err != nil {
		return err
	}

	values, err := s.engine.Suggest(cmd.Context(), req)
	if err != nil {
		return s.formatter.QueryError(engine.OpSuggest, err)
	}

	if s.formatter.Format == "json" {
		return s.formatter.Success(SuggestResult{Values: values})
	}
	for _, v := range values {
		fmt.Fprintln(s.formatter.Writer, v)
	}
	return nil
}
