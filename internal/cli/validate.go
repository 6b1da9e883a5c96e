package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/osq/internal/config"
	"github.com/roach88/osq/internal/ontology"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	ObjectTypes int               `json:"objectTypes,omitempty"`
	Interfaces  int               `json:"interfaces,omitempty"`
	Errors      []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one problem found in an ontology.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [ontology]",
		Short: "Validate a CUE ontology",
		Long: `Validate a CUE ontology without opening the object store.

Checks the ontology against the schema, then for internal consistency:
primary keys, property types, interface implementations and link
endpoints. All problems are reported together.

The ontology path defaults to --ontology or the config file value.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Ontology
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if path == "" && opts.Config != "" {
		// Only the ontology key matters here, so the file is not validated.
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return formatter.CommandError(ErrCodeConfig, "invalid configuration", err)
		}
		path = cfg.Ontology
	}
	if path == "" {
		return formatter.CommandError(ErrCodeNotFound, "no ontology given", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return formatter.CommandError(ErrCodeNotFound, fmt.Sprintf("ontology not found: %s", path), nil)
	}

	formatter.VerboseLog("Validating ontology %s", path)
	catalog, err := ontology.Load(path)
	if err != nil {
		return outputValidationErrors(formatter, validationIssues(err))
	}

	result := ValidationResult{
		Valid:       true,
		ObjectTypes: len(catalog.ObjectTypeNames()),
		Interfaces:  len(catalog.InterfaceNames()),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Ontology valid (%d object types, %d interfaces)\n", result.ObjectTypes, result.Interfaces)
	return nil
}

// validationIssues flattens a load error into its individual problems.
func validationIssues(err error) []ValidationIssue {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	issues := make([]ValidationIssue, 0, len(errs))
	for _, e := range errs {
		var ve ontology.ValidationError
		var ce *ontology.CompileError
		switch {
		case errors.As(e, &ve):
			issues = append(issues, ValidationIssue{Field: ve.Field, Code: ve.Code, Message: ve.Message})
		case errors.As(e, &ce):
			issues = append(issues, ValidationIssue{Field: ce.Field, Code: ErrCodeLoadFailed, Message: ce.Error()})
		default:
			issues = append(issues, ValidationIssue{Code: ErrCodeLoadFailed, Message: e.Error()})
		}
	}
	return issues
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "%s\n", issue.Field)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
