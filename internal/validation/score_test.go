package validation

import "testing"

func issuesOf(severities ...Severity) []Issue {
	issues := make([]Issue, 0, len(severities))
	for _, s := range severities {
		issues = append(issues, Issue{Severity: s, Code: IssueTypeValue})
	}
	return issues
}

func TestScore_Weights(t *testing.T) {
	tests := []struct {
		name   string
		issues []Issue
		want   int
	}{
		{"no issues", nil, 100},
		{"one fatal", issuesOf(SeverityFatal), 70},
		{"one error", issuesOf(SeverityError), 85},
		{"one warning", issuesOf(SeverityWarning), 95},
		{"one information", issuesOf(SeverityInformation), 99},
		{"error plus warning", issuesOf(SeverityError, SeverityWarning), 80},
		{"clamped at zero", issuesOf(SeverityFatal, SeverityFatal, SeverityFatal, SeverityFatal), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.issues); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	issues := issuesOf(SeverityError, SeverityWarning, SeverityInformation, SeverityFatal)
	first := Score(issues)
	for i := 0; i < 50; i++ {
		if got := Score(issues); got != first {
			t.Fatalf("Score() not deterministic: got %d then %d", first, got)
		}
	}
}

func TestScore_SeverityOrdering(t *testing.T) {
	fatal := Score(issuesOf(SeverityFatal))
	errScore := Score(issuesOf(SeverityError))
	warn := Score(issuesOf(SeverityWarning))
	clean := Score(nil)

	if !(fatal < errScore && errScore < warn && warn < clean) {
		t.Errorf("expected fatal < error < warning < clean, got %d, %d, %d, %d",
			fatal, errScore, warn, clean)
	}
}

func TestValid_IgnoresWarningsAndInfo(t *testing.T) {
	tests := []struct {
		name   string
		issues []Issue
		want   bool
	}{
		{"clean", nil, true},
		{"warnings only", issuesOf(SeverityWarning, SeverityWarning), true},
		{"information only", issuesOf(SeverityInformation), true},
		{"one error", issuesOf(SeverityError), false},
		{"one fatal", issuesOf(SeverityFatal), false},
		{"error among warnings", issuesOf(SeverityWarning, SeverityError, SeverityInformation), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.issues); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
