package harness

import (
	"errors"

	"github.com/roach88/osq/internal/aggregate"
	"github.com/roach88/osq/internal/engine"
	"github.com/roach88/osq/internal/qerr"
)

// StepResult is the normalised outcome of one step. Page tokens are
// reduced to More so that results compare across runs.
type StepResult struct {
	Name string `json:"name"`
	Op   string `json:"op"`

	Objects     []engine.Object   `json:"objects,omitempty"`
	TotalCount  *int              `json:"totalCount,omitempty"`
	More        *bool             `json:"more,omitempty"`
	ScrollID    string            `json:"scrollId,omitempty"`
	Aggregation *aggregate.Result `json:"aggregation,omitempty"`
	Values      []string          `json:"values,omitempty"`
	Snapshot    int64             `json:"snapshot,omitempty"`
	Errors      []StepError       `json:"errors,omitempty"`
}

// StepError is one classified error a step failed with.
type StepError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Path     string `json:"path,omitempty"`
}

// stepErrors flattens err into its classified members. Unclassified errors
// are reported with an empty code.
func stepErrors(err error) []StepError {
	var me *qerr.MultiError
	if errors.As(err, &me) {
		out := make([]StepError, 0, len(me.Errors))
		for _, e := range me.Errors {
			out = append(out, StepError{Category: string(e.Category), Code: string(e.Code), Path: e.Path})
		}
		return out
	}
	if qe, ok := qerr.As(err); ok {
		return []StepError{{Category: string(qe.Category), Code: string(qe.Code), Path: qe.Path}}
	}
	return []StepError{{Category: "UNCLASSIFIED"}}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step met its expectation.
	Pass bool `json:"pass"`

	// Steps holds each step's outcome in order.
	Steps []StepResult `json:"steps"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step outcome.
func (r *Result) AddStep(s StepResult) {
	r.Steps = append(r.Steps, s)
}
