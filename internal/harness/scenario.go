package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/osq/internal/engine"
)

// Scenario is a conformance scenario: an ontology, the data loaded into a
// fresh store, and a sequence of engine operations with their expected
// outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Ontology is the CUE file or package directory to compile.
	// Relative paths are resolved against the scenario file's directory.
	Ontology string `yaml:"ontology"`

	// Dataset is an optional dataset file imported on the default branch
	// before the first step.
	Dataset string `yaml:"dataset,omitempty"`

	// SavedSets are object set definitions saved under their RID before the
	// first step.
	SavedSets map[string]yaml.Node `yaml:"savedSets,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`
}

// Step operations besides the engine's own.
const (
	OpImport  = "import"
	OpAdvance = "advance"
)

var stepOps = []string{
	engine.OpLoadPage,
	engine.OpLoadScroll,
	engine.OpContinueScroll,
	engine.OpAggregate,
	engine.OpSuggest,
	OpImport,
	OpAdvance,
}

// Step is one operation of a scenario.
type Step struct {
	// Name labels the step in results and failure messages. Defaults to
	// "<op> #<index>".
	Name string `yaml:"name,omitempty"`

	// Op is one of loadPage, loadScroll, continueScroll, aggregate,
	// suggest, import, advance.
	Op string `yaml:"op"`

	// Request is the operation's request document, in the same shape the
	// CLI reads.
	Request yaml.Node `yaml:"request,omitempty"`

	// Resume makes a loadPage step continue from the previous page's token.
	Resume bool `yaml:"resume,omitempty"`

	// ScrollID overrides the scroll a continueScroll step advances. The
	// last scroll opened or continued is used otherwise.
	ScrollID string `yaml:"scrollId,omitempty"`

	// PageSize overrides the page size of a continueScroll step.
	PageSize int `yaml:"pageSize,omitempty"`

	// Dataset and Branch are the inputs of an import step.
	Dataset string `yaml:"dataset,omitempty"`
	Branch  string `yaml:"branch,omitempty"`

	// Advance is how far an advance step moves the clock.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Expect describes the outcome. If nil, the step must only succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step. Only the fields set are
// checked.
type Expect struct {
	// Error is the expected error code. The step must fail with it.
	Error string `yaml:"error,omitempty"`

	// Keys are the primary keys of the returned objects, in order.
	Keys []string `yaml:"keys,omitempty"`

	// Total is the expected total object count.
	Total *int `yaml:"total,omitempty"`

	// More reports whether a page token or scroll id must be returned.
	More *bool `yaml:"more,omitempty"`

	// Values are the expected suggestions, in order.
	Values []string `yaml:"values,omitempty"`

	// Metrics are expected top-level aggregation metric values (subset match).
	Metrics map[string]any `yaml:"metrics,omitempty"`

	// Buckets maps a sub-aggregation name to expected bucket counts by key
	// (subset match). The null bucket's key is "null".
	Buckets map[string]map[string]int `yaml:"buckets,omitempty"`

	// Accuracy is the expected aggregation accuracy.
	Accuracy string `yaml:"accuracy,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. File paths inside the
// scenario are resolved against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving file paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses a scenario document, resolving file paths relative
// to basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths BEFORE validation so existence checks see real files
	scenario.Ontology = resolve(basePath, scenario.Ontology)
	scenario.Dataset = resolve(basePath, scenario.Dataset)
	for i := range scenario.Steps {
		scenario.Steps[i].Dataset = resolve(basePath, scenario.Steps[i].Dataset)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Ontology == "" {
		return fmt.Errorf("ontology is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, path := range []string{s.Ontology, s.Dataset} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
	}
	for rid, def := range s.SavedSets {
		if def.Kind != yaml.MappingNode {
			return fmt.Errorf("savedSets[%s]: definition must be a mapping", rid)
		}
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, st *Step) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !slices.Contains(stepOps, st.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	if st.Name == "" {
		st.Name = fmt.Sprintf("%s #%d", st.Op, index)
	}

	hasRequest := st.Request.Kind != 0
	switch st.Op {
	case engine.OpLoadPage, engine.OpLoadScroll, engine.OpAggregate, engine.OpSuggest:
		if !hasRequest {
			return fmt.Errorf("steps[%d]: request is required for %s", index, st.Op)
		}
	case engine.OpContinueScroll:
		if hasRequest {
			return fmt.Errorf("steps[%d]: continueScroll takes no request", index)
		}
		if st.PageSize < 0 {
			return fmt.Errorf("steps[%d]: pageSize must be non-negative", index)
		}
	case OpImport:
		if st.Dataset == "" {
			return fmt.Errorf("steps[%d]: dataset is required for import", index)
		}
		if _, err := os.Stat(st.Dataset); os.IsNotExist(err) {
			return fmt.Errorf("steps[%d]: file not found: %s", index, st.Dataset)
		}
	case OpAdvance:
		if st.Advance <= 0 {
			return fmt.Errorf("steps[%d]: advance must be a positive duration", index)
		}
	}
	if st.Resume && st.Op != engine.OpLoadPage {
		return fmt.Errorf("steps[%d]: resume only applies to loadPage", index)
	}
	if st.Expect != nil && (st.Op == OpAdvance || st.Op == OpImport) && st.Expect.Error == "" {
		return fmt.Errorf("steps[%d]: %s steps only support an error expectation", index, st.Op)
	}
	return nil
}
