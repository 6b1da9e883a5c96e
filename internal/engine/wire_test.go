package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
)

func TestDecodeRequest_LoadPage(t *testing.T) {
	docs := map[string]string{
		"yaml": `
objectSet: {type: base, objectType: employee}
select: [age]
orderBy:
  - {property: age, direction: DESC}
pageSize: 2
requireConsistentPaging: true
context:
  branch: main
  owningRid: ri.owner.1
  parameterOverrides: {minAge: 40}
backend: HIGHBURY
includeUsageCost: true
`,
		"json": `{
  "objectSet": {"type": "base", "objectType": "employee"},
  "select": ["age"],
  "orderBy": [{"property": "age", "direction": "DESC"}],
  "pageSize": 2,
  "requireConsistentPaging": true,
  "context": {"branch": "main", "owningRid": "ri.owner.1", "parameterOverrides": {"minAge": 40}},
  "backend": "HIGHBURY",
  "includeUsageCost": true
}`,
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			var req LoadPageRequest
			require.NoError(t, DecodeRequest([]byte(doc), &req))
			assert.Equal(t, LoadPageRequest{
				ObjectSet:               objectset.Base{ObjectType: "employee"},
				Select:                  []string{"age"},
				OrderBy:                 []OrderBy{{Property: "age", Direction: objectset.Descending}},
				PageSize:                2,
				RequireConsistentPaging: true,
				Context: objectset.Context{
					Branch:             "main",
					OwningRID:          "ri.owner.1",
					ParameterOverrides: map[string]ir.Value{"minAge": ir.Int(40)},
				},
				Backend: backend.KindHighbury,
				Options: objectset.ResponseOptions{IncludeUsageCost: true},
			}, req)
		})
	}
}

func TestDecodeRequest_Aggregate(t *testing.T) {
	var req AggregateRequest
	require.NoError(t, DecodeRequest([]byte(`
objectSet: {type: base, objectType: employee}
aggregation:
  metrics:
    n: {type: count}
executionMode: PREFER_SPEED
`), &req))
	assert.Equal(t, objectset.PreferSpeed, req.ExecutionMode)
	assert.Equal(t, objectset.Count{}, req.Aggregation.Metrics["n"])
}

func TestDecodeRequest_Suggest(t *testing.T) {
	var req SuggestRequest
	require.NoError(t, DecodeRequest([]byte(`
objectSet: {type: base, objectType: employee}
property: name
input: {prefix: gra, fuzzy: true}
numRequestedValues: 3
`), &req))
	assert.Equal(t, "name", req.Property)
	assert.Equal(t, SuggestInput{Prefix: "gra", Fuzzy: true}, req.Input)
	assert.Equal(t, 3, req.NumRequestedValues)
}

func TestDecodeRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		req  any
		code qerr.Code
	}{
		{name: "unknown field", doc: "objectSet: {type: base, objectType: employee}\npagesize: 2\n", req: &LoadPageRequest{}, code: qerr.CodeInvalidArgument},
		{name: "field of another request", doc: "objectSet: {type: base, objectType: employee}\nproperty: name\n", req: &LoadScrollRequest{}, code: qerr.CodeInvalidArgument},
		{name: "missing object set", doc: "pageSize: 2\n", req: &LoadPageRequest{}, code: qerr.CodeInvalidArgument},
		{name: "bad object set", doc: "objectSet: {type: teleport}\n", req: &LoadPageRequest{}, code: qerr.CodeInvalidExpression},
		{name: "not a mapping", doc: "[1, 2]\n", req: &SuggestRequest{}, code: qerr.CodeInvalidArgument},
		{name: "empty", doc: "", req: &AggregateRequest{}, code: qerr.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeRequest([]byte(tt.doc), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, qerr.CodeOf(err))
		})
	}

	assert.Error(t, DecodeRequest([]byte("a: 1\n"), &struct{}{}))
}
