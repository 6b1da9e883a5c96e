// Package harness runs conformance scenarios against the query engine.
//
// A scenario compiles an ontology, imports a dataset into a fresh store,
// and executes a sequence of engine operations, checking each outcome
// against its expectation.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	ontology: ../data/company.cue
//	dataset: ../data/company.yaml
//	savedSets:
//	  ri.set.london:
//	    type: filtered
//	    objectSet: {type: base, objectType: employee}
//	    filter: {type: eq, property: office, value: london}
//	steps:
//	  - name: first page
//	    op: loadPage
//	    request:
//	      objectSet: {type: referenced, rid: ri.set.london}
//	      pageSize: 1
//	    expect:
//	      keys: [e1]
//	      total: 2
//	      more: true
//	  - op: loadPage
//	    resume: true
//	    request: {...}
//	  - op: advance
//	    advance: 25h
//
// Requests use the same documents the CLI reads. File paths are relative
// to the scenario file.
//
// # Step Operations
//
//   - loadPage, loadScroll, aggregate, suggest: run the request
//   - continueScroll: advance the last opened scroll, or scrollId
//   - import: apply a dataset file, optionally on another branch
//   - advance: move the clock forward and sweep idle scrolls
//
// # Deterministic Testing
//
// Every scenario runs with a fake clock starting at testutil.Epoch and
// sequential scroll ids ("scroll-000001", ...), so step outcomes are
// reproducible and can be compared against golden files. Page tokens are
// reduced to a "more" flag in results.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/page_employees.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
