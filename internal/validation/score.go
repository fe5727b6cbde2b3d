package validation

// Severity weights for the quality score. The score starts at 100 and each
// issue subtracts its severity's weight.
const (
	weightFatal       = 30
	weightError       = 15
	weightWarning     = 5
	weightInformation = 1
)

// SeverityCounts tallies issues per severity.
type SeverityCounts struct {
	Fatal       int `json:"fatal"`
	Error       int `json:"error"`
	Warning     int `json:"warning"`
	Information int `json:"information"`
}

// CountSeverities tallies the given issues by severity.
func CountSeverities(issues []Issue) SeverityCounts {
	var c SeverityCounts
	for _, is := range issues {
		switch is.Severity {
		case SeverityFatal:
			c.Fatal++
		case SeverityError:
			c.Error++
		case SeverityWarning:
			c.Warning++
		case SeverityInformation:
			c.Information++
		}
	}
	return c
}

// Score computes the 0-100 quality score for an issue set. The score is a
// pure function of the issue multiset.
func Score(issues []Issue) int {
	c := CountSeverities(issues)
	score := 100 -
		weightFatal*c.Fatal -
		weightError*c.Error -
		weightWarning*c.Warning -
		weightInformation*c.Information
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Valid reports whether an issue set leaves the record valid: no fatal and
// no error issues. Warnings and informational issues affect only the score.
func Valid(issues []Issue) bool {
	c := CountSeverities(issues)
	return c.Fatal == 0 && c.Error == 0
}
