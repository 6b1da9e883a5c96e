package qerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := Validation(CodePropertyNotFound, "property %q not found", "salary").At("$.filtered.filter")
	assert.Equal(t, `PROPERTY_NOT_FOUND: property "salary" not found (at $.filtered.filter)`, e.Error())

	b := Backend(true, errors.New("database is locked"), "scan failed")
	assert.Equal(t, "BACKEND_UNAVAILABLE: scan failed: database is locked", b.Error())
}

func TestAtKeepsInnermostPath(t *testing.T) {
	e := Validation(CodeInvalidRegex, "bad").At("$.a.b")
	assert.Equal(t, "$.a.b", e.At("$.a").Path)
}

func TestWithReturnsCopy(t *testing.T) {
	base := Validation(CodeTooManyBuckets, "too many")
	withDetail := base.With("max", "10000")
	assert.Nil(t, base.Details)
	assert.Equal(t, "10000", withDetail.Details["max"])
}

func TestCategoryHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", Validation(CodeEmptyTerms, "x"), IsValidation},
		{"resource", Resource(CodeScrollExpired, "x"), IsResource},
		{"backend", Backend(false, nil, "x"), IsBackend},
		{"not supported", NotSupported("x"), IsNotSupported},
		{"usage", Usage(CodeConcurrentScroll, "x"), IsUsage},
		{"wrapped", fmt.Errorf("load page: %w", Resource(CodeInvalidPageToken, "x")), IsResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	assert.False(t, IsValidation(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Backend(true, nil, "busy")))
	assert.False(t, IsRetryable(Backend(false, nil, "syntax")))
	assert.False(t, IsRetryable(Validation(CodeInvalidArgument, "x")))
}

func TestMultiError(t *testing.T) {
	var m MultiError
	require.NoError(t, m.ErrOrNil())

	m.Append(nil)
	m.Append(Validation(CodeDuplicateDerivedProperty, "dup").At("$[1]"))
	require.Equal(t, CodeDuplicateDerivedProperty, CodeOf(m.ErrOrNil()))

	m.Append(Validation(CodeDerivedFromDerived, "chain").At("$[0]"))
	m.Append(errors.New("raw"))
	err := m.ErrOrNil()
	require.Error(t, err)
	assert.Equal(t, 3, m.Len())
	assert.True(t, IsValidation(err))
	assert.True(t, HasCode(err, CodeDerivedFromDerived))
	assert.True(t, HasCode(err, CodeInvalidArgument))
	assert.False(t, HasCode(err, CodeEmptyTerms))

	var other MultiError
	other.Append(err)
	assert.Equal(t, 3, other.Len())
}

func TestWithPath(t *testing.T) {
	err := WithPath(Validation(CodeIllegalCast, "x"), "$.asType")
	qe, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "$.asType", qe.Path)

	m := &MultiError{}
	m.Append(Validation(CodeEmptyTerms, "a"))
	m.Append(Validation(CodeEmptyTerms, "b").At("$.x"))
	out := WithPath(m, "$.y").(*MultiError)
	assert.Equal(t, "$.y", out.Errors[0].Path)
	assert.Equal(t, "$.x", out.Errors[1].Path)

	plain := errors.New("plain")
	assert.Equal(t, plain, WithPath(plain, "$"))
}
