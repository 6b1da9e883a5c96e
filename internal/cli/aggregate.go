package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/osq/internal/aggregate"
	"github.com/roach88/osq/internal/engine"
	"github.com/roach88/osq/internal/ir"
)

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate <request>",
		Short: "Compute metrics and buckets over an object set",
		Long: `Evaluate an aggregate request: metrics over the whole object set and
nested sub-aggregations bucketed by dimensions.

The result reports ACCURATE or APPROXIMATE depending on the execution
mode and the cardinality of the data. Use "-" to read the request from
standard input.

Example:
  osq aggregate ./headcount.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runAggregate(opts *RootOptions, path string, cmd *cobra.Command) (err error) {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close session", closeErr)
		}
	}()

	var req engine.AggregateRequest
	if err := s.decodeRequest(cmd, path, &req); err != nil {
		return err
	}

	resp, err := s.engine.Aggregate(cmd.Context(), req)
	if err != nil {
		return s.formatter.QueryError(engine.OpAggregate, err)
	}

	if s.formatter.Format == "json" {
		return s.formatter.Success(resp)
	}
	writeMetrics(s.formatter.Writer, "", resp.Metrics)
	writeGroups(s.formatter.Writer, "", resp.SubAggregations)
	fmt.Fprintf(s.formatter.Writer, "accuracy: %s\n", resp.Accuracy)
	writeUsage(s.formatter, resp.Usage)
	return nil
}

func writeMetrics(w io.Writer, indent string, metrics ir.Object) {
	for _, name := range slices.Sorted(maps.Keys(metrics)) {
		fmt.Fprintf(w, "%s%s = %s\n", indent, name, formatValue(metrics[name]))
	}
}

// writeGroups prints sub-aggregations in name order, each bucket indented
// under its group.
func writeGroups(w io.Writer, indent string, groups map[string]*aggregate.Group) {
	for _, name := range slices.Sorted(maps.Keys(groups)) {
		g := groups[name]
		fmt.Fprintf(w, "%s%s:\n", indent, name)
		inner := indent + "  "
		writeMetrics(w, inner, g.Metrics)
		for _, b := range g.Buckets {
			fmt.Fprintf(w, "%s[%s] count=%d\n", inner, formatValue(b.Key), b.Count)
			writeMetrics(w, inner+"  ", b.Metrics)
			writeGroups(w, inner+"  ", b.SubAggregations)
		}
		if g.ItemsInOtherBuckets > 0 {
			fmt.Fprintf(w, "%s(other) count=%d\n", inner, g.ItemsInOtherBuckets)
		}
		writeGroups(w, inner, g.SubAggregations)
	}
}

// formatValue renders v as JSON, with strings unquoted.
func formatValue(v ir.Value) string {
	if s, ok := v.(ir.String); ok {
		return string(s)
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(string(data))
}
