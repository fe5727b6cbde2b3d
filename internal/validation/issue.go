// Package validation implements the multi-aspect validation engine: six
// independent aspect checkers, an engine that runs them over a resource,
// and the weighted severity scoring that turns issues into a 0-100 score.
package validation

// Severity classifies how bad an issue is, mirroring the FHIR
// OperationOutcome issue severity codes.
type Severity string

const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Issue type codes, a subset of the FHIR OperationOutcome issue-type value set.
const (
	IssueTypeStructure     = "structure"
	IssueTypeRequired      = "required"
	IssueTypeValue         = "value"
	IssueTypeInvariant     = "invariant"
	IssueTypeCodeInvalid   = "code-invalid"
	IssueTypeNotFound      = "not-found"
	IssueTypeBusinessRule  = "business-rule"
	IssueTypeInformational = "informational"
)

// Aspect names. Exactly these six are recognized; start requests naming
// anything else are rejected.
const (
	AspectStructural   = "structural"
	AspectProfile      = "profile"
	AspectTerminology  = "terminology"
	AspectReference    = "reference"
	AspectBusinessRule = "business-rule"
	AspectMetadata     = "metadata"
)

// AspectNames lists the six aspects in execution order. Structural is
// always first; the rest only run once the structure is known.
var AspectNames = []string{
	AspectStructural,
	AspectProfile,
	AspectTerminology,
	AspectReference,
	AspectBusinessRule,
	AspectMetadata,
}

// KnownAspect reports whether name is one of the six built-in aspects.
func KnownAspect(name string) bool {
	for _, a := range AspectNames {
		if a == name {
			return true
		}
	}
	return false
}

// Issue is one finding produced by an aspect checker.
type Issue struct {
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Location    string   `json:"location,omitempty"`
	Diagnostics string   `json:"diagnostics"`
	Aspect      string   `json:"aspect"`
}

// AspectResult is the per-aspect slice of a record's validation outcome.
// Only enabled aspects are populated.
type AspectResult struct {
	Enabled bool    `json:"enabled"`
	Issues  []Issue `json:"issues"`
	Score   int     `json:"score"`
	Passed  bool    `json:"passed"`
}

// Result is the full outcome of validating one record.
type Result struct {
	ResourceType  string                  `json:"resourceType"`
	ResourceID    string                  `json:"resourceId"`
	AspectResults map[string]AspectResult `json:"aspectResults"`
	Issues        []Issue                 `json:"issues"`
	OverallScore  int                     `json:"overallScore"`
	IsValid       bool                    `json:"isValid"`
}

// AspectConfig toggles individual aspects for a run. The zero value means
// "all enabled"; setting any entry false disables that aspect.
type AspectConfig map[string]bool

// Enabled reports whether the named aspect should run. Aspects absent from
// the map default to enabled.
func (c AspectConfig) Enabled(name string) bool {
	if c == nil {
		return true
	}
	on, ok := c[name]
	if !ok {
		return true
	}
	return on
}
