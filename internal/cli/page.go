package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/osq/internal/engine"
	"github.com/roach88/osq/internal/usage"
)

// PageOptions holds flags for the page command.
type PageOptions struct {
	*RootOptions
	PageToken string
	PageSize  int
}

// NewPageCommand creates the page command.
func NewPageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "page <request>",
		Short: "Load one page of an object set",
		Long: `Load one page of objects from a loadPage request document.

The request names the object set, the selected properties, the ordering
and the page size. Pass the printed page token back with --page-token to
load the next page of the same request. Use "-" to read the request from
standard input.

Examples:
  osq page ./employees.yaml
  osq page ./employees.yaml --page-token <token>
  osq page - --format json < ./employees.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPage(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PageToken, "page-token", "", "resume from a previous page token")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "override the request page size")

	return cmd
}

func runPage(opts *PageOptions, path string, cmd *cobra.Command) (err error) {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", closeErr)
		}
	}()

	var req engine.LoadPageRequest
	if err := s.decodeRequest(cmd, path, &req); err != nil {
		return err
	}
	if opts.PageToken != "" {
		req.PageToken = opts.PageToken
	}
	if opts.PageSize != 0 {
		req.PageSize = opts.PageSize
	}

	resp, err := s.engine.LoadPage(cmd.Context(), req)
	if err != nil {
		return s.formatter.QueryError(engine.OpLoadPage, err)
	}

	if s.formatter.Format == "json" {
		return s.formatter.Success(resp)
	}
	writeObjects(s.formatter.Writer, resp.Objects)
	fmt.Fprintf(s.formatter.Writer, "%d of %d objects\n", len(resp.Objects), resp.TotalObjects)
	if resp.NextPageToken != "" {
		fmt.Fprintf(s.formatter.Writer, "next page token: %s\n", resp.NextPageToken)
	}
	writeUsage(s.formatter, resp.Usage)
	return nil
}

// writeObjects prints one line per object: type/key and its properties.
func writeObjects(w io.Writer, objects []engine.Object) {
	for _, o := range objects {
		props, err := json.Marshal(o.Properties)
		if err != nil {
			props = []byte(fmt.Sprint(o.Properties))
		}
		if o.Distance != nil {
			fmt.Fprintf(w, "%s/%s %s distance=%g\n", o.ObjectType, o.PrimaryKey, props, *o.Distance)
			continue
		}
		fmt.Fprintf(w, "%s/%s %s\n", o.ObjectType, o.PrimaryKey, props)
	}
}

func writeUsage(f *OutputFormatter, cost *usage.Cost) {
	if cost != nil {
		f.VerboseLog("compute usage: %g", cost.ComputeUsage)
	}
}
