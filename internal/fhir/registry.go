package fhir

import "regexp"

// IDPattern matches the FHIR id datatype: alphanumerics, hyphens and dots,
// up to 64 characters.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9\-\.]{1,64}$`)

// ReferencePattern matches literal references in the "ResourceType/id" form.
var ReferencePattern = regexp.MustCompile(`^[A-Z][a-zA-Z]+/[a-zA-Z0-9\-\.]{1,64}$`)

// InstantPattern matches FHIR instant/dateTime values to the precision the
// metadata checks care about (date, optionally time with zone).
var InstantPattern = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2}(T\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+\-]\d{2}:\d{2})?)?)?)?$`)

// KnownTypes lists the FHIR R4 resource types this service recognizes.
var KnownTypes = map[string]bool{
	"Patient": true, "Practitioner": true, "PractitionerRole": true,
	"Organization": true, "Location": true, "Encounter": true,
	"Condition": true, "Observation": true, "AllergyIntolerance": true,
	"Procedure": true, "Medication": true, "MedicationRequest": true,
	"MedicationAdministration": true, "MedicationDispense": true,
	"MedicationStatement": true, "ServiceRequest": true,
	"DiagnosticReport": true, "ImagingStudy": true, "Specimen": true,
	"Appointment": true, "Schedule": true, "Slot": true,
	"Coverage": true, "Claim": true, "ClaimResponse": true,
	"Consent": true, "DocumentReference": true, "Composition": true,
	"Communication": true, "Questionnaire": true, "QuestionnaireResponse": true,
	"CareTeam": true, "CarePlan": true, "Immunization": true,
}

// DefaultWorklist is the resource-type order a job falls back to when
// neither the start request nor configuration names an explicit list.
var DefaultWorklist = []string{
	"Patient",
	"Practitioner",
	"Organization",
	"Encounter",
	"Condition",
	"Observation",
	"AllergyIntolerance",
	"Procedure",
	"MedicationRequest",
	"DiagnosticReport",
	"Immunization",
	"CarePlan",
}

// RequiredFields maps resource types to the fields FHIR R4 marks with
// cardinality 1..*. The structural aspect reports missing entries.
var RequiredFields = map[string][]string{
	"Observation":           {"status", "code"},
	"Condition":             {"subject"},
	"Encounter":             {"status", "class"},
	"MedicationRequest":     {"status", "intent", "subject", "medication"},
	"Procedure":             {"status", "subject"},
	"AllergyIntolerance":    {"patient"},
	"DiagnosticReport":      {"status", "code"},
	"Immunization":          {"status", "vaccineCode", "patient", "occurrence"},
	"ServiceRequest":        {"status", "intent", "subject"},
	"CarePlan":              {"status", "intent", "subject"},
	"QuestionnaireResponse": {"status"},
}

// StatusValues maps resource types to their valid status codes per FHIR R4.
var StatusValues = map[string][]string{
	"Patient":             {"active", "inactive", "entered-in-error"},
	"Practitioner":        {"active", "inactive", "entered-in-error"},
	"Organization":        {"active", "inactive", "entered-in-error"},
	"Encounter":           {"planned", "arrived", "triaged", "in-progress", "onleave", "finished", "cancelled", "entered-in-error", "unknown"},
	"Condition":           {"active", "recurrence", "relapse", "inactive", "remission", "resolved"},
	"Observation":         {"registered", "preliminary", "final", "amended", "corrected", "cancelled", "entered-in-error", "unknown"},
	"AllergyIntolerance":  {"active", "inactive", "resolved"},
	"Procedure":           {"preparation", "in-progress", "not-done", "on-hold", "stopped", "completed", "entered-in-error", "unknown"},
	"Medication":          {"active", "inactive", "entered-in-error"},
	"MedicationRequest":   {"active", "on-hold", "cancelled", "completed", "entered-in-error", "stopped", "draft", "unknown"},
	"MedicationStatement": {"active", "completed", "entered-in-error", "intended", "stopped", "on-hold", "unknown", "not-taken"},
	"ServiceRequest":      {"draft", "active", "on-hold", "revoked", "completed", "entered-in-error", "unknown"},
	"DiagnosticReport":    {"registered", "partial", "preliminary", "final", "amended", "corrected", "appended", "cancelled", "entered-in-error", "unknown"},
	"Immunization":        {"completed", "entered-in-error", "not-done"},
	"CarePlan":            {"draft", "active", "on-hold", "revoked", "completed", "entered-in-error", "unknown"},
	"DocumentReference":   {"current", "superseded", "entered-in-error"},
	"Composition":         {"preliminary", "final", "amended", "entered-in-error"},
}
