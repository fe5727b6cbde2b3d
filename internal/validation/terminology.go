package validation

import (
	"fmt"
	"sync"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// CodeRegistry is an in-memory terminology registry: code systems mapped to
// their member codes. It ships with the FHIR builtins the service needs and
// accepts additional registrations at runtime.
type CodeRegistry struct {
	mu      sync.RWMutex
	systems map[string]map[string]bool
}

// NewCodeRegistry creates a registry pre-loaded with the standard FHIR code
// systems referenced by the built-in checks.
func NewCodeRegistry() *CodeRegistry {
	r := &CodeRegistry{systems: make(map[string]map[string]bool)}
	r.registerBuiltins()
	return r
}

// Register adds or extends a code system.
func (r *CodeRegistry) Register(system string, codes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.systems[system]
	if !ok {
		set = make(map[string]bool, len(codes))
		r.systems[system] = set
	}
	for _, c := range codes {
		set[c] = true
	}
}

// KnownSystem reports whether the registry holds the given code system.
func (r *CodeRegistry) KnownSystem(system string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.systems[system]
	return ok
}

// ValidCode reports whether code belongs to system. The second return is
// false when the system itself is unknown.
func (r *CodeRegistry) ValidCode(system, code string) (valid, systemKnown bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.systems[system]
	if !ok {
		return false, false
	}
	return set[code], true
}

func (r *CodeRegistry) registerBuiltins() {
	builtins := map[string][]string{
		"http://hl7.org/fhir/observation-status": {
			"registered", "preliminary", "final", "amended", "corrected",
			"cancelled", "entered-in-error", "unknown",
		},
		"http://hl7.org/fhir/administrative-gender": {
			"male", "female", "other", "unknown",
		},
		"http://hl7.org/fhir/encounter-status": {
			"planned", "arrived", "triaged", "in-progress", "onleave",
			"finished", "cancelled", "entered-in-error", "unknown",
		},
		"http://terminology.hl7.org/CodeSystem/condition-clinical": {
			"active", "recurrence", "relapse", "inactive", "remission", "resolved",
		},
		"http://hl7.org/fhir/request-status": {
			"draft", "active", "on-hold", "revoked", "completed",
			"entered-in-error", "unknown",
		},
		"http://hl7.org/fhir/publication-status": {
			"draft", "active", "retired", "unknown",
		},
	}
	for system, codes := range builtins {
		set := make(map[string]bool, len(codes))
		for _, c := range codes {
			set[c] = true
		}
		r.systems[system] = set
	}
}

// terminologyChecker validates coded fields: resource status codes against
// the per-type value sets, gender against administrative-gender, and
// CodeableConcept codings against the registry's code systems.
type terminologyChecker struct {
	registry *CodeRegistry
}

func (terminologyChecker) Name() string { return AspectTerminology }

func (c terminologyChecker) Check(res fhir.Resource) []Issue {
	rt := res.Type()
	var issues []Issue

	if status, ok := res.String("status"); ok {
		if allowed, has := fhir.StatusValues[rt]; has && !contains(allowed, status) {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeCodeInvalid,
				Location:    "status",
				Diagnostics: fmt.Sprintf("'%s' is not a valid %s status", status, rt),
				Aspect:      AspectTerminology,
			})
		}
	}

	if gender, ok := res.String("gender"); ok {
		if valid, _ := c.registry.ValidCode("http://hl7.org/fhir/administrative-gender", gender); !valid {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeCodeInvalid,
				Location:    "gender",
				Diagnostics: fmt.Sprintf("'%s' is not a valid administrative gender", gender),
				Aspect:      AspectTerminology,
			})
		}
	}

	for _, field := range []string{"code", "category", "maritalStatus", "vaccineCode", "clinicalStatus"} {
		issues = append(issues, c.checkCodings(res, field)...)
	}
	return issues
}

// checkCodings walks a CodeableConcept (or list of them) at the given field
// and validates each coding whose system the registry knows. Unknown
// systems are only a warning; the registry is not exhaustive.
func (c terminologyChecker) checkCodings(res fhir.Resource, field string) []Issue {
	val, ok := res[field]
	if !ok {
		return nil
	}

	concepts := []map[string]interface{}{}
	switch v := val.(type) {
	case map[string]interface{}:
		concepts = append(concepts, v)
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				concepts = append(concepts, m)
			}
		}
	default:
		return nil
	}

	var issues []Issue
	for _, concept := range concepts {
		codings, ok := concept["coding"].([]interface{})
		if !ok {
			continue
		}
		for i, cv := range codings {
			coding, ok := cv.(map[string]interface{})
			if !ok {
				continue
			}
			system, _ := coding["system"].(string)
			code, _ := coding["code"].(string)
			if system == "" || code == "" {
				continue
			}
			loc := fmt.Sprintf("%s.coding[%d]", field, i)
			valid, known := c.registry.ValidCode(system, code)
			switch {
			case !known:
				issues = append(issues, Issue{
					Severity:    SeverityWarning,
					Code:        IssueTypeNotFound,
					Location:    loc,
					Diagnostics: fmt.Sprintf("code system '%s' is not known to the terminology registry", system),
					Aspect:      AspectTerminology,
				})
			case !valid:
				issues = append(issues, Issue{
					Severity:    SeverityError,
					Code:        IssueTypeCodeInvalid,
					Location:    loc,
					Diagnostics: fmt.Sprintf("code '%s' is not a member of '%s'", code, system),
					Aspect:      AspectTerminology,
				})
			}
		}
	}
	return issues
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
