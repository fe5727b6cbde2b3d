package job

import (
	"sync"
	"time"

	"github.com/medvertical/records-sub011/internal/validation"
)

// recentEventCap bounds the per-class ring of recent individual issues.
const recentEventCap = 100

// IssueEvent is one retained occurrence for diagnostics.
type IssueEvent struct {
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	Aspect       string    `json:"aspect"`
	Severity     string    `json:"severity"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// DetailSet partitions issue counts along each reporting dimension and
// keeps a capped ring of the most recent occurrences, oldest evicted first.
type DetailSet struct {
	Total          int            `json:"total"`
	ByType         map[string]int `json:"byType"`
	ByResourceType map[string]int `json:"byResourceType"`
	ByAspect       map[string]int `json:"byAspect"`
	BySeverity     map[string]int `json:"bySeverity"`
	Recent         []IssueEvent   `json:"recent"`
}

func newDetailSet() *DetailSet {
	return &DetailSet{
		ByType:         make(map[string]int),
		ByResourceType: make(map[string]int),
		ByAspect:       make(map[string]int),
		BySeverity:     make(map[string]int),
	}
}

func (d *DetailSet) record(ev IssueEvent) {
	d.Total++
	d.ByType[ev.Code]++
	d.ByResourceType[ev.ResourceType]++
	d.ByAspect[ev.Aspect]++
	d.BySeverity[ev.Severity]++

	d.Recent = append(d.Recent, ev)
	if len(d.Recent) > recentEventCap {
		d.Recent = d.Recent[len(d.Recent)-recentEventCap:]
	}
}

// clone deep-copies the set for snapshots.
func (d *DetailSet) clone() *DetailSet {
	out := &DetailSet{
		Total:          d.Total,
		ByType:         copyIntMap(d.ByType),
		ByResourceType: copyIntMap(d.ByResourceType),
		ByAspect:       copyIntMap(d.ByAspect),
		BySeverity:     copyIntMap(d.BySeverity),
		Recent:         append([]IssueEvent(nil), d.Recent...),
	}
	return out
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Aggregator rolls per-record outcomes up into error and warning detail
// sets. State is purely additive during a run and reset at Start; it is
// never persisted beyond what the checkpoint embeds.
type Aggregator struct {
	mu       sync.Mutex
	errors   *DetailSet
	warnings *DetailSet
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{errors: newDetailSet(), warnings: newDetailSet()}
}

// Reset clears all accumulated state for a fresh run.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = newDetailSet()
	a.warnings = newDetailSet()
}

// RecordOutcome folds one record's issues into the aggregate. Fatal and
// error issues land in the error set; warnings and informational issues in
// the warning set.
func (a *Aggregator) RecordOutcome(resourceType, resourceID string, issues []validation.Issue) {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, is := range issues {
		ev := IssueEvent{
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Aspect:       is.Aspect,
			Severity:     string(is.Severity),
			Code:         is.Code,
			Message:      is.Diagnostics,
			Timestamp:    now,
		}
		switch is.Severity {
		case validation.SeverityFatal, validation.SeverityError:
			a.errors.record(ev)
		default:
			a.warnings.record(ev)
		}
	}
}

// Snapshot returns deep copies of both detail sets.
func (a *Aggregator) Snapshot() (errors, warnings *DetailSet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errors.clone(), a.warnings.clone()
}

// Throughput derives records per second from elapsed wall time.
func Throughput(elapsed time.Duration, processed int) float64 {
	if elapsed <= 0 || processed <= 0 {
		return 0
	}
	return float64(processed) / elapsed.Seconds()
}

// ETA estimates seconds remaining, or nil when throughput is zero so
// callers never see a nonsensical infinite estimate.
func ETA(remaining int, throughput float64) *int64 {
	if throughput <= 0 || remaining < 0 {
		return nil
	}
	secs := int64(float64(remaining) / throughput)
	return &secs
}
