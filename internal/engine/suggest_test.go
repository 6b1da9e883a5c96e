package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
)

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		property string
		input    SuggestInput
		limit    int
		want     []string
	}{
		{name: "value prefix", property: "name", input: SuggestInput{Prefix: "a"}, want: []string{"Ada Lovelace", "Alan Turing"}},
		{name: "case folded", property: "name", input: SuggestInput{Prefix: "ADA L"}, want: []string{"Ada Lovelace"}},
		{name: "token prefix", property: "name", input: SuggestInput{Prefix: "hop"}, want: []string{"Grace Hopper"}},
		{name: "token sequence", property: "name", input: SuggestInput{Prefix: "katherine jo"}, want: []string{"Katherine Johnson"}},
		{name: "no match", property: "name", input: SuggestInput{Prefix: "dijkstar"}, want: []string{}},
		{name: "fuzzy", property: "name", input: SuggestInput{Prefix: "dijkstar", Fuzzy: true}, want: []string{"Edsger Dijkstra"}},
		{name: "fuzzy short tokens are exact", property: "name", input: SuggestInput{Prefix: "ax", Fuzzy: true}, want: []string{}},
		{
			name:     "array values by frequency",
			property: "tags",
			input:    SuggestInput{},
			limit:    3,
			want:     []string{"math", "algorithms", "compilers"},
		},
		{name: "frequency then lexical", property: "title", input: SuggestInput{}, want: []string{"Engineer", "Admiral", "Mathematician", "Professor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.Suggest(ctx, SuggestRequest{
				ObjectSet:          employees,
				Property:           tt.property,
				Input:              tt.input,
				NumRequestedValues: tt.limit,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggest_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SuggestRequest
		code qerr.Code
		path string
	}{
		{
			name: "not a string",
			req:  SuggestRequest{ObjectSet: employees, Property: "age"},
			code: qerr.CodePropertyTypeMismatch,
			path: "property",
		},
		{
			name: "unknown property",
			req:  SuggestRequest{ObjectSet: employees, Property: "nope"},
			code: qerr.CodePropertyNotFound,
			path: "property",
		},
		{
			name: "too many values",
			req:  SuggestRequest{ObjectSet: employees, Property: "name", NumRequestedValues: MaxSuggestions + 1},
			code: qerr.CodeInvalidArgument,
			path: "numRequestedValues",
		},
		{
			name: "unknown object type",
			req:  SuggestRequest{ObjectSet: objectset.Base{ObjectType: "spaceship"}, Property: "name"},
			code: qerr.CodeUnknownObjectType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Suggest(ctx, tt.req)
			require.Error(t, err)
			qe, ok := qerr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, qe.Code)
			if tt.path != "" {
				assert.Equal(t, tt.path, qe.Path)
			}
		})
	}
}
