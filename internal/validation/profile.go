package validation

import (
	"fmt"
	"strings"

	"github.com/medvertical/records-sub011/internal/fhir"
)

const baseProfilePrefix = "http://hl7.org/fhir/StructureDefinition/"

// recognizedProfilePrefixes are canonical URL roots this service accepts as
// plausible profile sources. Anything else is flagged for review.
var recognizedProfilePrefixes = []string{
	"http://hl7.org/fhir/",
	"http://hl7.org/fhir/us/core/",
	"https://fhir.hl7.org.uk/",
	"http://fhir.de/",
}

// profileChecker inspects meta.profile declarations: entries must be
// canonical URLs, should come from a recognized publisher, and a declared
// base profile must match the resource's own type.
type profileChecker struct{}

func (profileChecker) Name() string { return AspectProfile }

func (profileChecker) Check(res fhir.Resource) []Issue {
	rt := res.Type()
	meta, ok := res.Meta()
	if !ok {
		return nil
	}
	profVal, ok := meta["profile"]
	if !ok {
		return []Issue{{
			Severity:    SeverityInformation,
			Code:        IssueTypeInformational,
			Location:    "meta.profile",
			Diagnostics: "no profile declared; validated against the base specification only",
			Aspect:      AspectProfile,
		}}
	}

	profiles, ok := profVal.([]interface{})
	if !ok {
		return []Issue{{
			Severity:    SeverityError,
			Code:        IssueTypeStructure,
			Location:    "meta.profile",
			Diagnostics: "meta.profile must be an array",
			Aspect:      AspectProfile,
		}}
	}

	var issues []Issue
	for i, p := range profiles {
		loc := fmt.Sprintf("meta.profile[%d]", i)
		url, ok := p.(string)
		if !ok || url == "" {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeValue,
				Location:    loc,
				Diagnostics: "profile entries must be non-empty canonical URLs",
				Aspect:      AspectProfile,
			})
			continue
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeValue,
				Location:    loc,
				Diagnostics: fmt.Sprintf("profile '%s' is not an absolute canonical URL", url),
				Aspect:      AspectProfile,
			})
			continue
		}
		if strings.HasPrefix(url, baseProfilePrefix) && rt != "" {
			if declared := strings.TrimPrefix(url, baseProfilePrefix); declared != rt {
				issues = append(issues, Issue{
					Severity:    SeverityError,
					Code:        IssueTypeInvariant,
					Location:    loc,
					Diagnostics: fmt.Sprintf("declared base profile '%s' does not match resource type '%s'", declared, rt),
					Aspect:      AspectProfile,
				})
			}
			continue
		}
		if !recognizedProfile(url) {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Code:        IssueTypeNotFound,
				Location:    loc,
				Diagnostics: fmt.Sprintf("profile '%s' is not from a recognized publisher; conformance not checked", url),
				Aspect:      AspectProfile,
			})
		}
	}
	return issues
}

func recognizedProfile(url string) bool {
	for _, prefix := range recognizedProfilePrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
