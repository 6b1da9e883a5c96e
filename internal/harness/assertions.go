package harness

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/osq/internal/aggregate"
	"github.com/roach88/osq/internal/ir"
)

// AssertionError is returned when a step's outcome differs from its
// expectation.
type AssertionError struct {
	Step     string // Step name
	Check    string // Which expectation failed
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "step %q: %s mismatch\n", e.Step, e.Check)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// CheckStep compares out against step's expectation and returns a message
// per failed check. A step without an expectation must succeed.
func CheckStep(step Step, out StepResult) []string {
	var errs []error
	fail := func(check, expected, actual string) {
		errs = append(errs, &AssertionError{Step: step.Name, Check: check, Expected: expected, Actual: actual})
	}

	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	if exp.Error != "" {
		if !slices.ContainsFunc(out.Errors, func(e StepError) bool { return e.Code == exp.Error }) {
			fail("error", exp.Error, describeErrors(out.Errors))
		}
		return messages(errs)
	}
	if len(out.Errors) > 0 {
		fail("outcome", "success", describeErrors(out.Errors))
		return messages(errs)
	}

	if exp.Keys != nil {
		if got := primaryKeys(out); !slices.Equal(got, exp.Keys) {
			fail("keys", fmt.Sprint(exp.Keys), fmt.Sprint(got))
		}
	}
	if exp.Total != nil {
		if out.TotalCount == nil || *out.TotalCount != *exp.Total {
			fail("total", fmt.Sprint(*exp.Total), describeInt(out.TotalCount))
		}
	}
	if exp.More != nil {
		if out.More == nil || *out.More != *exp.More {
			fail("more", fmt.Sprint(*exp.More), describeBool(out.More))
		}
	}
	if exp.Values != nil && !slices.Equal(out.Values, exp.Values) {
		fail("values", fmt.Sprintf("%q", exp.Values), fmt.Sprintf("%q", out.Values))
	}

	if exp.Metrics != nil || exp.Buckets != nil || exp.Accuracy != "" {
		if out.Aggregation == nil {
			fail("aggregation", "an aggregation result", "none")
			return messages(errs)
		}
		checkAggregation(out.Aggregation, exp, fail)
	}
	return messages(errs)
}

func checkAggregation(res *aggregate.Result, exp *Expect, fail func(check, expected, actual string)) {
	if exp.Accuracy != "" && string(res.Accuracy) != exp.Accuracy {
		fail("accuracy", exp.Accuracy, string(res.Accuracy))
	}
	for _, name := range slices.Sorted(maps.Keys(exp.Metrics)) {
		want, err := jsonValue(exp.Metrics[name])
		if err != nil {
			fail("metrics."+name, fmt.Sprint(exp.Metrics[name]), err.Error())
			continue
		}
		got, ok := res.Metrics[name]
		if !ok {
			fail("metrics."+name, string(want), "missing")
			continue
		}
		gotJSON, err := ir.MarshalValue(got)
		if err != nil || !bytes.Equal(gotJSON, want) {
			fail("metrics."+name, string(want), string(gotJSON))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(exp.Buckets)) {
		g, ok := res.SubAggregations[name]
		if !ok {
			fail("buckets."+name, "a sub-aggregation", "missing")
			continue
		}
		counts := bucketCounts(g)
		for _, key := range slices.Sorted(maps.Keys(exp.Buckets[name])) {
			want := exp.Buckets[name][key]
			got, ok := counts[key]
			if !ok {
				fail(fmt.Sprintf("buckets.%s[%s]", name, key), fmt.Sprint(want), "no such bucket")
			} else if got != want {
				fail(fmt.Sprintf("buckets.%s[%s]", name, key), fmt.Sprint(want), fmt.Sprint(got))
			}
		}
	}
}

// jsonValue renders an expected YAML value the way result values marshal.
func jsonValue(v any) ([]byte, error) {
	val, err := ir.FromAny(v)
	if err != nil {
		return nil, err
	}
	return ir.MarshalValue(val)
}

// bucketCounts indexes g's buckets by key. String keys are used as-is,
// other keys by their JSON form.
func bucketCounts(g *aggregate.Group) map[string]int {
	out := make(map[string]int, len(g.Buckets))
	for _, b := range g.Buckets {
		out[bucketKey(b.Key)] = b.Count
	}
	return out
}

func bucketKey(v ir.Value) string {
	if s, ok := v.(ir.String); ok {
		return string(s)
	}
	if ir.IsNull(v) {
		return "null"
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func primaryKeys(out StepResult) []string {
	keys := make([]string, len(out.Objects))
	for i, o := range out.Objects {
		keys[i] = o.PrimaryKey
	}
	return keys
}

func describeErrors(errs []StepError) string {
	if len(errs) == 0 {
		return "no error"
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Code
		if e.Path != "" {
			parts[i] += " at " + e.Path
		}
	}
	return strings.Join(parts, ", ")
}

func describeInt(p *int) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprint(*p)
}

func describeBool(p *bool) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprint(*p)
}

func messages(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
