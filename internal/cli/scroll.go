package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/osq/internal/engine"
)

// ScrollOptions holds flags for the scroll command.
type ScrollOptions struct {
	*RootOptions
	PageSize int
	MaxPages int
}

// ScrollResult holds the objects read from one scroll.
type ScrollResult struct {
	ScrollID     string          `json:"scrollId"`
	Objects      []engine.Object `json:"data"`
	PageCount    int             `json:"pages"`
	TotalObjects int             `json:"totalCount"`
	Exhausted    bool            `json:"exhausted"`
}

// NewScrollCommand creates the scroll command.
func NewScrollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScrollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scroll <request>",
		Short: "Stream an object set through a scroll cursor",
		Long: `Open a scroll cursor from a loadScroll request and read it until it is
exhausted or --max-pages pages were read.

Scroll cursors live in the process that opened them, so the whole scroll
runs within one invocation. Every page reads the snapshot the scroll was
opened at. Use "-" to read the request from standard input.

Examples:
  osq scroll ./employees.yaml --page-size 500
  osq scroll ./employees.yaml --max-pages 1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScroll(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "objects per page (0 uses the request page size)")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "stop after this many pages (0 reads all)")

	return cmd
}

func runScroll(opts *ScrollOptions, path string, cmd *cobra.Command) (err error) {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", closeErr)
		}
	}()

	var req engine.LoadScrollRequest
	if err := s.decodeRequest(cmd, path, &req); err != nil {
		return err
	}

	ctx := cmd.Context()
	opened, err := s.engine.LoadScroll(ctx, req)
	if err != nil {
		return s.formatter.QueryError(engine.OpLoadScroll, err)
	}
	s.logger.Debug("scroll opened", "scrollId", opened.ScrollID)

	result := ScrollResult{ScrollID: opened.ScrollID}
	id := opened.ScrollID
	for opts.MaxPages == 0 || result.PageCount < opts.MaxPages {
		page, err := s.engine.ContinueScroll(ctx, id, opts.PageSize)
		if err != nil {
			return s.formatter.QueryError(engine.OpContinueScroll, err)
		}
		result.PageCount++
		result.TotalObjects = page.TotalObjects
		result.Objects = append(result.Objects, page.Objects...)
		if s.formatter.Format != "json" {
			writeObjects(s.formatter.Writer, page.Objects)
		}
		writeUsage(s.formatter, page.Usage)
		if page.ScrollID == "" {
			result.Exhausted = true
			break
		}
		id = page.ScrollID
	}

	if s.formatter.Format == "json" {
		return s.formatter.Success(result)
	}
	fmt.Fprintf(s.formatter.Writer, "%d of %d objects in %d page(s)\n", len(result.Objects), result.TotalObjects, result.PageCount)
	if !result.Exhausted {
		fmt.Fprintln(s.formatter.Writer, "scroll not exhausted")
	}
	return nil
}
