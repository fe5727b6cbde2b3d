// Package job implements the bulk validation orchestrator: the single
// active job state machine, the batch processor that pages records through
// the validation engine, and the HTTP control surface.
package job

import (
	"errors"
	"fmt"

	"github.com/medvertical/records-sub011/internal/validation"
)

// Sentinel errors for control operations.
var (
	// ErrNoActiveJob is returned by Pause and Resume when nothing is running.
	ErrNoActiveJob = errors.New("no active validation job")
	// ErrNoSourceConfigured is returned by Start when no resource type can
	// be resolved into a worklist.
	ErrNoSourceConfigured = errors.New("no source resource types resolvable")
	// ErrNoRestorableJob is returned by RestoreActive when the checkpoint
	// store holds nothing usable for the server.
	ErrNoRestorableJob = errors.New("no restorable job for server")
)

// Limits on caller-supplied batch configuration.
const (
	maxBatchSize     = 1000
	maxConcurrency   = 50
	defaultBatchSize = 100
	defaultWorkers   = 5
)

// StartConfig carries the caller's batch tuning knobs.
type StartConfig struct {
	BatchSize     int `json:"batchSize,omitempty"`
	MaxConcurrent int `json:"maxConcurrent,omitempty"`
}

// StartRequest is the payload of POST /validation/jobs/start. All fields
// are optional; zero values fall back to configuration defaults.
type StartRequest struct {
	ResourceTypes     []string        `json:"resourceTypes,omitempty"`
	ValidationAspects map[string]bool `json:"validationAspects,omitempty"`
	Config            *StartConfig    `json:"config,omitempty"`
}

// Validate returns per-field error strings; an empty slice means the
// request is acceptable.
func (r *StartRequest) Validate() []string {
	var errs []string

	for i, rt := range r.ResourceTypes {
		if rt == "" {
			errs = append(errs, fmt.Sprintf("resourceTypes[%d]: must be a non-empty string", i))
		}
	}

	for name := range r.ValidationAspects {
		if !validation.KnownAspect(name) {
			errs = append(errs, fmt.Sprintf("validationAspects.%s: unknown aspect", name))
		}
	}

	if r.Config != nil {
		if r.Config.BatchSize < 0 || r.Config.BatchSize > maxBatchSize {
			errs = append(errs, fmt.Sprintf("config.batchSize: must be a positive integer up to %d", maxBatchSize))
		}
		if r.Config.MaxConcurrent < 0 || r.Config.MaxConcurrent > maxConcurrency {
			errs = append(errs, fmt.Sprintf("config.maxConcurrent: must be a positive integer up to %d", maxConcurrency))
		}
	}
	return errs
}

// runConfig is the resolved, validated configuration a job actually runs
// with. Built once at Start and immutable afterwards.
type runConfig struct {
	batchSize     int
	maxConcurrent int
	aspects       validation.AspectConfig
}

func (r *StartRequest) resolve(defaultBatch, defaultConcurrent int) runConfig {
	cfg := runConfig{
		batchSize:     defaultBatch,
		maxConcurrent: defaultConcurrent,
		aspects:       validation.AspectConfig(r.ValidationAspects),
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxConcurrent <= 0 {
		cfg.maxConcurrent = defaultWorkers
	}
	if r.Config != nil {
		if r.Config.BatchSize > 0 {
			cfg.batchSize = r.Config.BatchSize
		}
		if r.Config.MaxConcurrent > 0 {
			cfg.maxConcurrent = r.Config.MaxConcurrent
		}
	}
	return cfg
}
