package validation

import (
	"fmt"
	"strings"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// referenceChecker walks the resource tree for Reference objects and checks
// that each literal reference is well formed and points at a known type.
// Resolvability against the source server is deliberately not checked here;
// that would turn a cheap local pass into a network fan-out.
type referenceChecker struct{}

func (referenceChecker) Name() string { return AspectReference }

func (referenceChecker) Check(res fhir.Resource) []Issue {
	var issues []Issue
	walkReferences(map[string]interface{}(res), "", func(path, ref string) {
		issues = append(issues, checkReference(path, ref)...)
	})
	return issues
}

func checkReference(path, ref string) []Issue {
	switch {
	case ref == "":
		return []Issue{{
			Severity:    SeverityError,
			Code:        IssueTypeValue,
			Location:    path,
			Diagnostics: "reference must not be empty",
			Aspect:      AspectReference,
		}}
	case strings.HasPrefix(ref, "#"):
		// Contained reference; resolution is out of scope for this pass.
		return nil
	case strings.HasPrefix(ref, "urn:uuid:"), strings.HasPrefix(ref, "urn:oid:"):
		return nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return nil
	}

	if !fhir.ReferencePattern.MatchString(ref) {
		return []Issue{{
			Severity:    SeverityError,
			Code:        IssueTypeValue,
			Location:    path,
			Diagnostics: fmt.Sprintf("reference '%s' is not in ResourceType/id form", ref),
			Aspect:      AspectReference,
		}}
	}
	if rt := ref[:strings.IndexByte(ref, '/')]; !fhir.KnownTypes[rt] {
		return []Issue{{
			Severity:    SeverityWarning,
			Code:        IssueTypeNotFound,
			Location:    path,
			Diagnostics: fmt.Sprintf("reference '%s' targets unknown resource type '%s'", ref, rt),
			Aspect:      AspectReference,
		}}
	}
	return nil
}

// walkReferences visits every {"reference": "..."} object in the tree,
// calling fn with the dotted path and the reference string.
func walkReferences(node interface{}, path string, fn func(path, ref string)) {
	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["reference"]; ok {
			if refStr, isStr := ref.(string); isStr {
				p := path
				if p == "" {
					p = "reference"
				} else {
					p += ".reference"
				}
				fn(p, refStr)
			}
		}
		for key, child := range v {
			if key == "reference" {
				continue
			}
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			walkReferences(child, childPath, fn)
		}
	case []interface{}:
		for i, child := range v {
			walkReferences(child, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	}
}
