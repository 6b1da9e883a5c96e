// Package qerr defines the error taxonomy shared by every osq component.
//
// Each error carries a Category (what kind of failure it is) and a Code
// (which failure exactly). Validation errors also carry the path of the
// offending sub-expression, e.g. "$.intersected.objectSets[1].filter".
// Accuracy degradation is never an error; it is reported on results.
package qerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category groups error codes by how callers should react to them.
type Category string

const (
	// CategoryValidation errors are detected before any backend call.
	CategoryValidation Category = "VALIDATION"

	// CategoryResource errors refer to tokens, scrolls or saved sets that
	// are unknown or expired.
	CategoryResource Category = "RESOURCE"

	// CategoryBackend errors are surfaced from the execution backend.
	CategoryBackend Category = "BACKEND"

	// CategoryNotSupported marks intentionally unimplemented combinations.
	CategoryNotSupported Category = "NOT_SUPPORTED"

	// CategoryUsage errors are caller protocol violations.
	CategoryUsage Category = "USAGE"
)

// Code identifies a specific failure.
type Code string

// Validation codes.
const (
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodeInvalidExpression        Code = "INVALID_EXPRESSION"
	CodeUnknownObjectType        Code = "UNKNOWN_OBJECT_TYPE"
	CodeUnknownInterfaceType     Code = "UNKNOWN_INTERFACE_TYPE"
	CodeUnknownLinkType          Code = "UNKNOWN_LINK_TYPE"
	CodePropertyNotFound         Code = "PROPERTY_NOT_FOUND"
	CodePropertyNotSortable      Code = "PROPERTY_NOT_SORTABLE"
	CodePropertyTypeMismatch     Code = "PROPERTY_TYPE_MISMATCH"
	CodeIllegalCast              Code = "ILLEGAL_CAST"
	CodeInvalidRegex             Code = "INVALID_REGEX"
	CodeEmptyTerms               Code = "EMPTY_TERMS"
	CodeMissingParameterValue    Code = "MISSING_PARAMETER_VALUE"
	CodeTooManyBuckets           Code = "TOO_MANY_BUCKETS"
	CodeInvalidBucketing         Code = "INVALID_BUCKETING"
	CodeInvalidMetric            Code = "INVALID_METRIC"
	CodeDuplicateDerivedProperty Code = "DUPLICATE_DERIVED_PROPERTY"
	CodeDerivedPropertyCollision Code = "DERIVED_PROPERTY_COLLISION"
	CodeDerivedFromDerived       Code = "DERIVED_FROM_DERIVED"
	CodeInvalidLinkCardinality   Code = "INVALID_LINK_CARDINALITY"
	CodeCalculatedTypeMismatch   Code = "CALCULATED_TYPE_MISMATCH"
	CodeReferenceCycle           Code = "REFERENCE_CYCLE"
	CodeExpressionTooLarge       Code = "EXPRESSION_TOO_LARGE"
	CodeInvalidKnn               Code = "INVALID_KNN"
)

// Resource codes.
const (
	CodeInvalidPageToken  Code = "INVALID_PAGE_TOKEN"
	CodeScrollExpired     Code = "SCROLL_EXPIRED"
	CodeObjectSetNotFound Code = "OBJECT_SET_NOT_FOUND"
	CodeSnapshotNotFound  Code = "SNAPSHOT_NOT_FOUND"
)

// Backend, unsupported and usage codes.
const (
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	CodeBackendQuery       Code = "BACKEND_QUERY_FAILED"
	CodeNotSupported       Code = "NOT_SUPPORTED"
	CodeConcurrentScroll   Code = "CONCURRENT_SCROLL"
)

// Error is a classified osq error.
type Error struct {
	// Category classifies the error.
	Category Category

	// Code identifies the failure.
	Code Code

	// Message is a human-readable description.
	Message string

	// Path locates the offending sub-expression, when there is one.
	Path string

	// Retryable is set on backend errors caused by transient conditions.
	Retryable bool

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (at %s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// At returns a copy of e located at path. An existing path is kept, since
// the innermost location is the most precise one.
func (e *Error) At(path string) *Error {
	if e.Path != "" || path == "" {
		return e
	}
	cp := *e
	cp.Path = path
	return &cp
}

// With returns a copy of e with an extra detail attached.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func newError(cat Category, code Code, format string, args ...any) *Error {
	return &Error{Category: cat, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(code Code, format string, args ...any) *Error {
	return newError(CategoryValidation, code, format, args...)
}

// Resource creates a resource error.
func Resource(code Code, format string, args ...any) *Error {
	return newError(CategoryResource, code, format, args...)
}

// NotSupported creates an unsupported-operation error.
func NotSupported(format string, args ...any) *Error {
	return newError(CategoryNotSupported, CodeNotSupported, format, args...)
}

// Usage creates a usage error.
func Usage(code Code, format string, args ...any) *Error {
	return newError(CategoryUsage, code, format, args...)
}

// Backend wraps a failure from the execution backend.
func Backend(retryable bool, err error, format string, args ...any) *Error {
	code := CodeBackendQuery
	if retryable {
		code = CodeBackendUnavailable
	}
	e := newError(CategoryBackend, code, format, args...)
	e.Retryable = retryable
	e.Err = err
	return e
}

// WithPath locates err at path. Errors that already carry a path and
// errors that are not classified are returned unchanged.
func WithPath(err error, path string) error {
	var me *MultiError
	if errors.As(err, &me) {
		out := &MultiError{Errors: make([]*Error, len(me.Errors))}
		for i, e := range me.Errors {
			out.Errors[i] = e.At(path)
		}
		return out
	}
	var qe *Error
	if errors.As(err, &qe) && qe.Path == "" && err == error(qe) {
		return qe.At(path)
	}
	return err
}

// MultiError collects independent validation errors so callers see all of
// them at once.
type MultiError struct {
	Errors []*Error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	msgs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d errors: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	out := make([]error, len(m.Errors))
	for i, e := range m.Errors {
		out[i] = e
	}
	return out
}

// Append adds err to m. Nested MultiErrors are flattened; unclassified
// errors are wrapped as INVALID_ARGUMENT validation errors.
func (m *MultiError) Append(err error) {
	if err == nil {
		return
	}
	var me *MultiError
	if errors.As(err, &me) {
		m.Errors = append(m.Errors, me.Errors...)
		return
	}
	var qe *Error
	if errors.As(err, &qe) {
		m.Errors = append(m.Errors, qe)
		return
	}
	m.Errors = append(m.Errors, &Error{
		Category: CategoryValidation,
		Code:     CodeInvalidArgument,
		Message:  err.Error(),
		Err:      err,
	})
}

// Len returns the number of collected errors.
func (m *MultiError) Len() int { return len(m.Errors) }

// ErrOrNil returns m sorted by path, the sole error when there is one, or
// nil when empty.
func (m *MultiError) ErrOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	}
	sort.SliceStable(m.Errors, func(i, j int) bool { return m.Errors[i].Path < m.Errors[j].Path })
	return m
}

// As returns the first classified error in err's chain.
func As(err error) (*Error, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// CodeOf returns the code of the first classified error in err's chain,
// or "" when there is none.
func CodeOf(err error) Code {
	if qe, ok := As(err); ok {
		return qe.Code
	}
	return ""
}

// CategoryOf returns the category of err, or "" when it is unclassified.
func CategoryOf(err error) Category {
	if qe, ok := As(err); ok {
		return qe.Category
	}
	return ""
}

// HasCode reports whether any classified error in err's tree has code.
func HasCode(err error, code Code) bool {
	var me *MultiError
	if errors.As(err, &me) {
		for _, e := range me.Errors {
			if e.Code == code {
				return true
			}
		}
		return false
	}
	return CodeOf(err) == code
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return CategoryOf(err) == CategoryValidation }

// IsResource returns true if err is a resource error.
func IsResource(err error) bool { return CategoryOf(err) == CategoryResource }

// IsBackend returns true if err came from the execution backend.
func IsBackend(err error) bool { return CategoryOf(err) == CategoryBackend }

// IsNotSupported returns true if err marks an unsupported combination.
func IsNotSupported(err error) bool { return CategoryOf(err) == CategoryNotSupported }

// IsUsage returns true if err is a usage error.
func IsUsage(err error) bool { return CategoryOf(err) == CategoryUsage }

// IsRetryable returns true if err is a transient backend failure.
func IsRetryable(err error) bool {
	qe, ok := As(err)
	return ok && qe.Retryable
}
