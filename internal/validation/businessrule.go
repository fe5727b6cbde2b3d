package validation

import (
	"fmt"

	"github.com/medvertical/records-sub011/internal/fhir"
)

var validMedicationRequestIntents = map[string]bool{
	"proposal": true, "plan": true, "order": true, "original-order": true,
	"reflex-order": true, "filler-order": true, "instance-order": true,
	"option": true,
}

var validEncounterClasses = map[string]bool{
	"AMB": true, "EMER": true, "FLD": true, "HH": true, "IMP": true,
	"ACUTE": true, "NONAC": true, "OBSENC": true, "PRENC": true,
	"SS": true, "VR": true,
}

// businessRuleChecker applies resource-type-specific clinical rules.
type businessRuleChecker struct{}

func (businessRuleChecker) Name() string { return AspectBusinessRule }

func (c businessRuleChecker) Check(res fhir.Resource) []Issue {
	switch res.Type() {
	case "Patient":
		return c.patientRules(res)
	case "Observation":
		return c.observationRules(res)
	case "MedicationRequest":
		return c.medicationRequestRules(res)
	case "Encounter":
		return c.encounterRules(res)
	}
	return nil
}

// patientRules: a Patient record is clinically unusable without at least
// one name or identifier.
func (businessRuleChecker) patientRules(res fhir.Resource) []Issue {
	hasName := hasNonEmpty(res, "name")
	hasIdentifier := hasNonEmpty(res, "identifier")
	if hasName || hasIdentifier {
		return nil
	}
	return []Issue{{
		Severity:    SeverityError,
		Code:        IssueTypeBusinessRule,
		Location:    "Patient",
		Diagnostics: "Patient must have at least one name or identifier",
		Aspect:      AspectBusinessRule,
	}}
}

// observationRules: a final Observation without any value[x], component or
// dataAbsentReason carries no result.
func (businessRuleChecker) observationRules(res fhir.Resource) []Issue {
	status, ok := res.String("status")
	if !ok || (status != "final" && status != "amended") {
		return nil
	}

	valueFields := []string{
		"valueQuantity", "valueCodeableConcept", "valueString", "valueBoolean",
		"valueInteger", "valueRange", "valueRatio", "valueTime",
		"valueDateTime", "valuePeriod", "component", "dataAbsentReason",
	}
	for _, f := range valueFields {
		if _, ok := res[f]; ok {
			return nil
		}
	}
	return []Issue{{
		Severity:    SeverityWarning,
		Code:        IssueTypeBusinessRule,
		Location:    "Observation",
		Diagnostics: fmt.Sprintf("Observation with status '%s' should have a value or dataAbsentReason", status),
		Aspect:      AspectBusinessRule,
	}}
}

func (businessRuleChecker) medicationRequestRules(res fhir.Resource) []Issue {
	intent, ok := res.String("intent")
	if !ok || validMedicationRequestIntents[intent] {
		return nil
	}
	return []Issue{{
		Severity:    SeverityError,
		Code:        IssueTypeValue,
		Location:    "MedicationRequest.intent",
		Diagnostics: fmt.Sprintf("invalid intent '%s' for MedicationRequest", intent),
		Aspect:      AspectBusinessRule,
	}}
}

func (businessRuleChecker) encounterRules(res fhir.Resource) []Issue {
	var issues []Issue

	if classMap, ok := res.Object("class"); ok {
		if code, ok := classMap["code"].(string); ok && !validEncounterClasses[code] {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Code:        IssueTypeValue,
				Location:    "Encounter.class.code",
				Diagnostics: fmt.Sprintf("Encounter class code '%s' is not a standard v3 ActEncounterCode (AMB, EMER, IMP, etc.)", code),
				Aspect:      AspectBusinessRule,
			})
		}
	}

	if period, ok := res.Object("period"); ok {
		start, _ := period["start"].(string)
		end, _ := period["end"].(string)
		if start != "" && end != "" && start > end {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeInvariant,
				Location:    "Encounter.period",
				Diagnostics: "period start must not be after period end",
				Aspect:      AspectBusinessRule,
			})
		}
	}
	return issues
}

func hasNonEmpty(res fhir.Resource, field string) bool {
	switch v := res[field].(type) {
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return true
	}
	return false
}
