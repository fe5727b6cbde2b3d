package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medvertical/records-sub011/internal/checkpoint"
	"github.com/medvertical/records-sub011/internal/fhir"
	"github.com/medvertical/records-sub011/internal/platform/telemetry"
	"github.com/medvertical/records-sub011/internal/validation"
)

// run is the batch processor: one goroutine per active job, driving the
// worklist strictly in order. Types never run concurrently with each
// other, which keeps the checkpoint cursor a single (typeIndex, pageOffset)
// pair.
func (m *Manager) run(ctx context.Context, j *activeJob) {
	log := m.log.With().Str("job_id", j.id).Logger()
	defer func() {
		m.mu.Lock()
		j.processorRunning = false
		m.mu.Unlock()
	}()

	for {
		if stopped := m.waitWhilePaused(j); stopped {
			return
		}

		m.mu.Lock()
		if j.typeIndex >= len(j.worklist) {
			m.mu.Unlock()
			break
		}
		typeIndex := j.typeIndex
		rt := j.worklist[typeIndex]
		offset := j.pageOffset
		cfg := j.cfg
		m.mu.Unlock()

		if err := m.processType(ctx, j, rt, offset, cfg, log); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("resource_type", rt).Msg("source unreachable; skipping resource type")
			m.tel.IncCounter(telemetry.MetricTypesSkipped)
		}

		m.mu.Lock()
		if j.stopRequested {
			m.mu.Unlock()
			return
		}
		j.typeIndex = typeIndex + 1
		j.pageOffset = 0
		state := m.stateLocked(j)
		m.mu.Unlock()
		m.persist(ctx, state)
	}

	m.mu.Lock()
	j.status = StatusComplete
	j.stoppedAt = time.Now()
	state := m.stateLocked(j)
	processed := j.processed
	m.mu.Unlock()

	m.persist(context.Background(), state)
	m.tel.SetGauge(telemetry.GaugeJobActive, 0)
	log.Info().Int("processed", processed).Msg("validation job completed")
}

// waitWhilePaused blocks on the manager condition variable until the job
// is resumed or stopped. Returns true when the processor should exit.
func (m *Manager) waitWhilePaused(j *activeJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for j.pauseRequested && !j.stopRequested {
		m.cond.Wait()
	}
	return j.stopRequested
}

// processType pages one resource type from the given offset to exhaustion.
// A source error is returned so the caller can skip the type; everything
// narrower is isolated per record.
func (m *Manager) processType(ctx context.Context, j *activeJob, rt string, offset int, cfg runConfig, log zerolog.Logger) error {
	count, err := m.src.Count(ctx, rt)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if offset == 0 {
		// Discovery: a type counted for the first time grows the totals.
		// On a mid-type resume the restored totals already include it.
		j.total += count
		j.totalBatches += batchesFor(count, cfg.batchSize)
	} else {
		j.totalBatches += batchesFor(count-offset, cfg.batchSize)
	}
	m.mu.Unlock()

	log.Info().Str("resource_type", rt).Int("count", count).Int("offset", offset).Msg("processing resource type")

	pagesSinceCheckpoint := 0
	for {
		if stopped := m.waitWhilePaused(j); stopped {
			return nil
		}

		page, err := m.src.FetchPage(ctx, rt, offset, cfg.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		m.tel.IncCounter(telemetry.MetricPagesFetched)
		if len(page.Resources) == 0 {
			return nil
		}

		m.dispatchPage(j, rt, page.Resources, cfg)

		offset += len(page.Resources)
		pagesSinceCheckpoint++
		lastPage := len(page.Resources) < cfg.batchSize

		m.mu.Lock()
		j.pageOffset = offset
		j.currentBatch++
		stopped := j.stopRequested
		toPersist := pagesSinceCheckpoint >= m.opts.CheckpointEvery || lastPage
		var cpState *checkpoint.State
		if toPersist {
			pagesSinceCheckpoint = 0
			cpState = m.stateLocked(j)
		}
		m.mu.Unlock()

		if toPersist && !stopped {
			m.persist(ctx, cpState)
		}
		if stopped || lastPage {
			return nil
		}
	}
}

// dispatchPage validates one page of records with bounded concurrency.
// Each record is isolated: a panic inside validation becomes an error
// detail, never an aborted batch.
func (m *Manager) dispatchPage(j *activeJob, rt string, resources []fhir.Resource, cfg runConfig) {
	sem := make(chan struct{}, cfg.maxConcurrent)
	var wg sync.WaitGroup

	for _, res := range resources {
		wg.Add(1)
		sem <- struct{}{}
		go func(res fhir.Resource) {
			defer wg.Done()
			defer func() { <-sem }()
			m.validateRecord(j, rt, res, cfg)
		}(res)
	}
	wg.Wait()
}

func (m *Manager) validateRecord(j *activeJob, rt string, res fhir.Resource, cfg runConfig) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.RecordOutcome(rt, res.ID(), []validation.Issue{{
				Severity:    validation.SeverityFatal,
				Code:        validation.IssueTypeStructure,
				Diagnostics: fmt.Sprintf("validation dispatch panicked: %v", r),
				Aspect:      validation.AspectStructural,
			}})
			m.mu.Lock()
			j.processed++
			j.errored++
			m.mu.Unlock()
			m.tel.IncCounter(telemetry.MetricRecordsProcessed)
			m.tel.IncCounter(telemetry.MetricRecordsInvalid)
		}
	}()

	result := m.engine.Validate(res, cfg.aspects)

	resourceType := result.ResourceType
	if resourceType == "" {
		resourceType = rt
	}
	m.metrics.RecordOutcome(resourceType, result.ResourceID, result.Issues)

	m.mu.Lock()
	j.processed++
	if result.IsValid {
		j.valid++
	} else {
		j.errored++
	}
	m.mu.Unlock()

	m.tel.IncCounter(telemetry.MetricRecordsProcessed)
	if result.IsValid {
		m.tel.IncCounter(telemetry.MetricRecordsValid)
	} else {
		m.tel.IncCounter(telemetry.MetricRecordsInvalid)
	}
	m.tel.AddCounter(telemetry.MetricIssues, int64(len(result.Issues)))
}

func batchesFor(count, batchSize int) int {
	if count <= 0 || batchSize <= 0 {
		return 0
	}
	return (count + batchSize - 1) / batchSize
}
