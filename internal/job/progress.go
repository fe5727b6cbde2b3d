package job

import "time"

// ProgressSnapshot is a point-in-time view of the active job. Counters are
// copied under the manager lock; throughput and ETA are derived on every
// read and never persisted as authoritative.
type ProgressSnapshot struct {
	Status string `json:"status"`
	JobID  string `json:"jobId,omitempty"`

	TotalResources     int `json:"totalResources"`
	ProcessedResources int `json:"processedResources"`
	ValidResources     int `json:"validResources"`
	ErrorResources     int `json:"errorResources"`

	CurrentBatch        int    `json:"currentBatch"`
	TotalBatches        int    `json:"totalBatches"`
	CurrentResourceType string `json:"currentResourceType,omitempty"`
	NextResourceType    string `json:"nextResourceType,omitempty"`

	ErrorDetails   *DetailSet `json:"errorDetails,omitempty"`
	WarningDetails *DetailSet `json:"warningDetails,omitempty"`

	Throughput                float64 `json:"throughput"`
	EstimatedTimeRemainingSec *int64  `json:"estimatedTimeRemainingSec"`

	StartedAt     *time.Time `json:"startedAt,omitempty"`
	RunDurationMs int64      `json:"runDurationMs"`
}

// FinalStats summarizes a finished (stopped or completed) run.
type FinalStats struct {
	JobID              string `json:"jobId"`
	TotalResources     int    `json:"totalResources"`
	ProcessedResources int    `json:"processedResources"`
	ValidResources     int    `json:"validResources"`
	ErrorResources     int    `json:"errorResources"`
	RunDurationMs      int64  `json:"runDurationMs"`
}

// StartResult is what Start reports back to the control surface.
type StartResult struct {
	JobID          string `json:"jobId"`
	Status         string `json:"status"`
	AlreadyRunning bool   `json:"-"`
}

// StopResult is what Stop reports back to the control surface.
type StopResult struct {
	Status     string      `json:"status"`
	FinalStats *FinalStats `json:"finalStats,omitempty"`
}
