package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/osq/internal/engine"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"page_employees", "scroll_employees", "aggregate_offices", "suggest_values", "saved_sets", "errors"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_ScrollOutcomes(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "scroll_employees"))
	require.NoError(t, err)
	require.Len(t, result.Steps, 8)

	assert.Equal(t, "scroll-000001", result.Steps[0].ScrollID)
	assert.Equal(t, "scroll-000001", result.Steps[1].ScrollID)
	assert.Empty(t, result.Steps[2].ScrollID)
	assert.Equal(t, []StepError{{Category: "RESOURCE", Code: "SCROLL_EXPIRED"}}, result.Steps[3].Errors)
	assert.Equal(t, "scroll-000002", result.Steps[4].ScrollID)
}

func TestRun_SavedSetSnapshots(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "saved_sets"))
	require.NoError(t, err)

	// The dataset is the first write; each import is another.
	assert.Equal(t, int64(2), result.Steps[3].Snapshot)
	assert.Equal(t, int64(3), result.Steps[6].Snapshot)
}

func TestRun_FailedExpectations(t *testing.T) {
	s := loadTestScenario(t, "page_employees")
	total := 3
	s.Steps[0].Expect = &Expect{Keys: []string{"e1"}, Total: &total}
	s.Steps[1].Expect = &Expect{Error: "INVALID_PAGE_TOKEN"}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "keys mismatch")
	assert.Contains(t, result.Errors[1], "total mismatch")
	assert.Contains(t, result.Errors[2], "error mismatch")
}

func TestRun_UnexpectedError(t *testing.T) {
	s := loadTestScenario(t, "page_employees")
	var req yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("{objectSet: {type: base, objectType: spaceship}}"), &req))
	s.Steps = []Step{{Name: "bad", Op: engine.OpLoadPage, Request: *req.Content[0]}}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UNKNOWN_OBJECT_TYPE")
	assert.Equal(t, "UNKNOWN_OBJECT_TYPE", result.Steps[0].Errors[0].Code)
}

func TestRun_BadOntology(t *testing.T) {
	s := loadTestScenario(t, "page_employees")
	s.Ontology = filepath.Join(t.TempDir(), "missing.cue")

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load ontology")
}
