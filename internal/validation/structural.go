package validation

import (
	"fmt"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// structuralChecker verifies basic resource shape: a known resourceType, a
// well-formed id, and the presence of required fields. Its findings are the
// cheapest signal that a record is unusable, which is why the engine runs
// it before everything else.
type structuralChecker struct{}

func (structuralChecker) Name() string { return AspectStructural }

func (c structuralChecker) Check(res fhir.Resource) []Issue {
	var issues []Issue

	rt, ok := res["resourceType"]
	if !ok {
		return append(issues, Issue{
			Severity:    SeverityFatal,
			Code:        IssueTypeStructure,
			Location:    "resourceType",
			Diagnostics: "resourceType is required",
			Aspect:      AspectStructural,
		})
	}
	rtStr, ok := rt.(string)
	if !ok || rtStr == "" {
		return append(issues, Issue{
			Severity:    SeverityFatal,
			Code:        IssueTypeStructure,
			Location:    "resourceType",
			Diagnostics: "resourceType must be a non-empty string",
			Aspect:      AspectStructural,
		})
	}
	if !fhir.KnownTypes[rtStr] {
		issues = append(issues, Issue{
			Severity:    SeverityError,
			Code:        IssueTypeStructure,
			Location:    "resourceType",
			Diagnostics: fmt.Sprintf("unknown resource type '%s'", rtStr),
			Aspect:      AspectStructural,
		})
		return issues
	}

	issues = append(issues, c.checkID(res)...)
	issues = append(issues, c.checkRequired(res, rtStr)...)
	return issues
}

func (structuralChecker) checkID(res fhir.Resource) []Issue {
	idVal, ok := res["id"]
	if !ok {
		return nil
	}
	idStr, ok := idVal.(string)
	if !ok {
		return []Issue{{
			Severity:    SeverityError,
			Code:        IssueTypeValue,
			Location:    "id",
			Diagnostics: "id must be a string",
			Aspect:      AspectStructural,
		}}
	}
	if idStr != "" && !fhir.IDPattern.MatchString(idStr) {
		return []Issue{{
			Severity:    SeverityError,
			Code:        IssueTypeValue,
			Location:    "id",
			Diagnostics: fmt.Sprintf("id '%s' does not match the FHIR id format (alphanumerics, hyphens, dots, up to 64 chars)", idStr),
			Aspect:      AspectStructural,
		}}
	}
	return nil
}

func (structuralChecker) checkRequired(res fhir.Resource, rt string) []Issue {
	fields, ok := fhir.RequiredFields[rt]
	if !ok {
		return nil
	}

	var issues []Issue
	for _, field := range fields {
		// Choice-typed required elements are satisfied by any concrete
		// variant, e.g. medicationCodeableConcept or medicationReference.
		switch {
		case rt == "MedicationRequest" && field == "medication":
			_, hasConcept := res["medicationCodeableConcept"]
			_, hasRef := res["medicationReference"]
			if !hasConcept && !hasRef {
				issues = append(issues, requiredIssue(rt, "medication[x]"))
			}
		case rt == "Immunization" && field == "occurrence":
			_, hasDT := res["occurrenceDateTime"]
			_, hasStr := res["occurrenceString"]
			if !hasDT && !hasStr {
				issues = append(issues, requiredIssue(rt, "occurrence[x]"))
			}
		default:
			if _, ok := res[field]; !ok {
				issues = append(issues, requiredIssue(rt, field))
			}
		}
	}
	return issues
}

func requiredIssue(rt, field string) Issue {
	return Issue{
		Severity:    SeverityError,
		Code:        IssueTypeRequired,
		Location:    field,
		Diagnostics: fmt.Sprintf("%s requires field '%s'", rt, field),
		Aspect:      AspectStructural,
	}
}
