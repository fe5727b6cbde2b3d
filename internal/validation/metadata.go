package validation

import (
	"fmt"

	"github.com/medvertical/records-sub011/internal/fhir"
)

// metadataChecker verifies the meta element and record identity fields:
// versionId and lastUpdated shapes, and the presence of a logical id, which
// any record fetched from a server should carry.
type metadataChecker struct{}

func (metadataChecker) Name() string { return AspectMetadata }

func (metadataChecker) Check(res fhir.Resource) []Issue {
	var issues []Issue

	if res.ID() == "" {
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Code:        IssueTypeRequired,
			Location:    "id",
			Diagnostics: "server-held resource has no logical id",
			Aspect:      AspectMetadata,
		})
	}

	metaVal, ok := res["meta"]
	if !ok {
		issues = append(issues, Issue{
			Severity:    SeverityInformation,
			Code:        IssueTypeInformational,
			Location:    "meta",
			Diagnostics: "resource carries no meta element",
			Aspect:      AspectMetadata,
		})
		return issues
	}

	meta, ok := metaVal.(map[string]interface{})
	if !ok {
		issues = append(issues, Issue{
			Severity:    SeverityError,
			Code:        IssueTypeStructure,
			Location:    "meta",
			Diagnostics: "meta must be an object",
			Aspect:      AspectMetadata,
		})
		return issues
	}

	if vid, ok := meta["versionId"]; ok {
		if _, isStr := vid.(string); !isStr {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeValue,
				Location:    "meta.versionId",
				Diagnostics: "meta.versionId must be a string",
				Aspect:      AspectMetadata,
			})
		}
	}

	if lu, ok := meta["lastUpdated"]; ok {
		luStr, isStr := lu.(string)
		if !isStr || !fhir.InstantPattern.MatchString(luStr) {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        IssueTypeValue,
				Location:    "meta.lastUpdated",
				Diagnostics: fmt.Sprintf("meta.lastUpdated '%v' is not a valid instant", lu),
				Aspect:      AspectMetadata,
			})
		}
	} else {
		issues = append(issues, Issue{
			Severity:    SeverityInformation,
			Code:        IssueTypeInformational,
			Location:    "meta.lastUpdated",
			Diagnostics: "resource does not record when it was last updated",
			Aspect:      AspectMetadata,
		})
	}

	return issues
}
