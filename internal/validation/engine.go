package validation

import (
	"fmt"
	"sync"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// Checker is one validation aspect: it inspects a resource and reports
// issues. Checkers never fail; a broken record is an issue, not an error.
type Checker interface {
	Name() string
	Check(res fhir.Resource) []Issue
}

// Engine runs the six aspect checkers over a resource and assembles the
// scored result. The structural checker runs first; the remaining aspects
// run concurrently once the structure is known. That ordering is an
// optimization, not a correctness dependency.
type Engine struct {
	structural Checker
	others     []Checker
}

// NewEngine builds an engine with the six built-in aspects, sharing the
// given terminology registry.
func NewEngine(registry *CodeRegistry) *Engine {
	return &Engine{
		structural: structuralChecker{},
		others: []Checker{
			profileChecker{},
			terminologyChecker{registry: registry},
			referenceChecker{},
			businessRuleChecker{},
			metadataChecker{},
		},
	}
}

// Validate runs all enabled aspects over the resource and returns the
// scored result. It never returns an error; a checker panic surfaces as a
// fatal issue on that aspect.
func (e *Engine) Validate(res fhir.Resource, cfg AspectConfig) Result {
	perAspect := make(map[string][]Issue, len(AspectNames))

	if cfg.Enabled(e.structural.Name()) {
		perAspect[e.structural.Name()] = runChecker(e.structural, res)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range e.others {
		if !cfg.Enabled(c.Name()) {
			continue
		}
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			issues := runChecker(c, res)
			mu.Lock()
			perAspect[c.Name()] = issues
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	result := Result{
		ResourceType:  res.Type(),
		ResourceID:    res.ID(),
		AspectResults: make(map[string]AspectResult, len(AspectNames)),
	}
	for _, name := range AspectNames {
		if !cfg.Enabled(name) {
			result.AspectResults[name] = AspectResult{Enabled: false}
			continue
		}
		issues := perAspect[name]
		result.AspectResults[name] = AspectResult{
			Enabled: true,
			Issues:  issues,
			Score:   Score(issues),
			Passed:  Valid(issues),
		}
		result.Issues = append(result.Issues, issues...)
	}
	result.OverallScore = Score(result.Issues)
	result.IsValid = Valid(result.Issues)
	return result
}

// runChecker isolates a single aspect: a panic inside a checker becomes a
// fatal issue instead of taking down the batch.
func runChecker(c Checker, res fhir.Resource) (issues []Issue) {
	defer func() {
		if r := recover(); r != nil {
			issues = append(issues, Issue{
				Severity:    SeverityFatal,
				Code:        IssueTypeStructure,
				Diagnostics: fmt.Sprintf("%s validation panicked: %v", c.Name(), r),
				Aspect:      c.Name(),
			})
		}
	}()
	return c.Check(res)
}
