// Package checkpoint persists the resumable position of a validation job:
// the cursor (worklist, type index, page offset) plus accumulated counters,
// keyed by job id and scoped by source server, with TTL-based expiry.
package checkpoint

import (
	"encoding/json"
	"time"
)

// DefaultTTL is how long a saved checkpoint stays restorable.
const DefaultTTL = 24 * time.Hour

// Job status values as persisted in checkpoint state.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusStopped   = "stopped"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// State is the persisted job state blob: cursor plus counters. It is a
// durability optimization, not the source of truth; the in-memory job
// remains authoritative while the process lives.
type State struct {
	JobID    string `json:"jobId"`
	ServerID int    `json:"serverId"`
	Status   string `json:"status"`

	ResourceTypes    []string `json:"resourceTypes"`
	CurrentTypeIndex int      `json:"currentTypeIndex"`
	PageOffset       int      `json:"pageOffset"`

	TotalResources     int `json:"totalResources"`
	ProcessedResources int `json:"processedResources"`
	ValidResources     int `json:"validResources"`
	ErrorResources     int `json:"errorResources"`

	ErrorsByResourceType   map[string]int `json:"errorsByResourceType,omitempty"`
	WarningsByResourceType map[string]int `json:"warningsByResourceType,omitempty"`

	StartedAt time.Time `json:"startedAt"`
}

// Active reports whether the state describes a job worth restoring.
func (s *State) Active() bool {
	return s.Status == StatusRunning || s.Status == StatusPaused
}

// Clone returns a deep copy so stored state cannot be mutated by callers.
func (s *State) Clone() *State {
	out := *s
	out.ResourceTypes = append([]string(nil), s.ResourceTypes...)
	out.ErrorsByResourceType = copyCounts(s.ErrorsByResourceType)
	out.WarningsByResourceType = copyCounts(s.WarningsByResourceType)
	return &out
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate reconstructs a State from a raw persisted blob, coercing
// missing or malformed fields to safe defaults instead of failing.
// Persisted state is best-effort, not a hard contract. Returns nil only
// when the blob is not a JSON object at all.
func Validate(raw []byte) *State {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}

	s := &State{
		JobID:    asString(m["jobId"]),
		ServerID: asInt(m["serverId"]),
		Status:   asString(m["status"]),

		CurrentTypeIndex: asInt(m["currentTypeIndex"]),
		PageOffset:       asInt(m["pageOffset"]),

		TotalResources:     asInt(m["totalResources"]),
		ProcessedResources: asInt(m["processedResources"]),
		ValidResources:     asInt(m["validResources"]),
		ErrorResources:     asInt(m["errorResources"]),

		ErrorsByResourceType:   asCounts(m["errorsByResourceType"]),
		WarningsByResourceType: asCounts(m["warningsByResourceType"]),
	}

	if types, ok := m["resourceTypes"].([]interface{}); ok {
		for _, v := range types {
			if t, ok := v.(string); ok && t != "" {
				s.ResourceTypes = append(s.ResourceTypes, t)
			}
		}
	}

	switch s.Status {
	case StatusRunning, StatusPaused, StatusStopped, StatusCompleted, StatusFailed:
	default:
		// An unrecognized status must not resurrect as an active job.
		s.Status = StatusStopped
	}

	if s.PageOffset < 0 {
		s.PageOffset = 0
	}
	if s.CurrentTypeIndex < 0 {
		s.CurrentTypeIndex = 0
	}
	if s.CurrentTypeIndex > len(s.ResourceTypes) {
		s.CurrentTypeIndex = len(s.ResourceTypes)
	}
	clampNonNegative(&s.TotalResources, &s.ProcessedResources, &s.ValidResources, &s.ErrorResources)

	if ts := asString(m["startedAt"]); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			s.StartedAt = parsed
		}
	}
	return s
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func asCounts(v interface{}) map[string]int {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, raw := range m {
		out[k] = asInt(raw)
	}
	return out
}

func clampNonNegative(vals ...*int) {
	for _, v := range vals {
		if *v < 0 {
			*v = 0
		}
	}
}
