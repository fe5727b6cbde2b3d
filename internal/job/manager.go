package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medvertical/records-sub011/internal/checkpoint"
	"github.com/medvertical/records-sub011/internal/fhir"
	"github.com/medvertical/records-sub011/internal/platform/telemetry"
	"github.com/medvertical/records-sub011/internal/source"
	"github.com/medvertical/records-sub011/internal/validation"
)

// Job lifecycle status values. The persisted subset lives in the
// checkpoint package; "idle" and "stopping" are in-memory only.
const (
	StatusIdle     = "idle"
	StatusRunning  = checkpoint.StatusRunning
	StatusPaused   = checkpoint.StatusPaused
	StatusStopping = "stopping"
	StatusStopped  = checkpoint.StatusStopped
	StatusComplete = checkpoint.StatusCompleted
	StatusFailed   = checkpoint.StatusFailed
)

// Options configures a Manager.
type Options struct {
	// ServerID identifies the source server; checkpoints are scoped to it.
	ServerID int
	// ResourceTypes is the configured include-list used when a start
	// request names no types. Empty means the built-in default worklist.
	ResourceTypes []string
	// BatchSize and MaxConcurrent are the defaults for requests that do
	// not tune them.
	BatchSize     int
	MaxConcurrent int
	// CheckpointEvery is the page cadence between periodic checkpoint
	// saves. Zero means every 5 pages.
	CheckpointEvery int
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultWorkers
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 5
	}
}

// activeJob is the single mutable job record. All fields are guarded by
// the Manager mutex; the processor goroutine and control operations both
// touch them.
type activeJob struct {
	id       string
	serverID int
	status   string

	cfg      runConfig
	worklist []string

	typeIndex  int
	pageOffset int

	total     int
	processed int
	valid     int
	errored   int

	currentBatch int
	totalBatches int

	startedAt time.Time
	stoppedAt time.Time

	pauseRequested   bool
	stopRequested    bool
	processorRunning bool
	cancel           context.CancelFunc
}

// active reports whether the job still owns the "one active job" slot.
func (j *activeJob) active() bool {
	switch j.status {
	case StatusRunning, StatusPaused, StatusStopping:
		return true
	}
	return false
}

// Manager owns the process-wide job state machine. Exactly one job may be
// running or paused at a time; the invariant is enforced under the same
// mutex that flips idle to running.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond
	job  *activeJob

	src     source.Client
	engine  *validation.Engine
	store   checkpoint.Store
	metrics *Aggregator
	tel     *telemetry.Provider
	log     zerolog.Logger
	opts    Options
}

// NewManager wires the orchestrator together. Construct once per process
// and inject into the HTTP handler.
func NewManager(src source.Client, engine *validation.Engine, store checkpoint.Store,
	tel *telemetry.Provider, logger zerolog.Logger, opts Options) *Manager {

	opts.applyDefaults()
	m := &Manager{
		src:     src,
		engine:  engine,
		store:   store,
		metrics: NewAggregator(),
		tel:     tel,
		log:     logger.With().Str("component", "job_manager").Logger(),
		opts:    opts,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start launches a new validation job, or reports the existing one when a
// job is already active. Returns immediately; processing happens in a
// background goroutine.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	m.mu.Lock()
	if m.job != nil && m.job.active() {
		res := &StartResult{JobID: m.job.id, Status: m.job.status, AlreadyRunning: true}
		m.mu.Unlock()
		m.log.Info().Str("job_id", res.JobID).Msg("start requested while a job is active")
		return res, nil
	}

	worklist := m.resolveWorklist(req)
	if len(worklist) == 0 || m.src == nil {
		m.mu.Unlock()
		return nil, ErrNoSourceConfigured
	}

	runCtx, cancel := context.WithCancel(context.Background())
	j := &activeJob{
		id:               uuid.NewString(),
		serverID:         m.opts.ServerID,
		status:           StatusRunning,
		cfg:              req.resolve(m.opts.BatchSize, m.opts.MaxConcurrent),
		worklist:         worklist,
		startedAt:        time.Now(),
		processorRunning: true,
		cancel:           cancel,
	}
	m.job = j
	m.metrics.Reset()
	state := m.stateLocked(j)
	m.mu.Unlock()

	// The job slot is held while we probe so a concurrent Start cannot
	// sneak in; on an unreachable source the slot is released again.
	if !m.sourceReachable(ctx, worklist) {
		cancel()
		m.mu.Lock()
		m.job = nil
		m.mu.Unlock()
		return nil, ErrNoSourceConfigured
	}

	m.tel.SetGauge(telemetry.GaugeJobActive, 1)
	m.persist(ctx, state)
	go m.run(runCtx, j)

	m.log.Info().
		Str("job_id", j.id).
		Strs("worklist", worklist).
		Int("batch_size", j.cfg.batchSize).
		Int("max_concurrent", j.cfg.maxConcurrent).
		Msg("validation job started")
	return &StartResult{JobID: j.id, Status: StatusRunning}, nil
}

// Pause asks the processor to suspend at the next record or page boundary.
// A validation already in flight is allowed to finish.
func (m *Manager) Pause(ctx context.Context) error {
	m.mu.Lock()
	j := m.job
	if j == nil || !j.active() || j.status == StatusStopping {
		m.mu.Unlock()
		return ErrNoActiveJob
	}
	if j.status == StatusPaused {
		m.mu.Unlock()
		return nil
	}
	j.pauseRequested = true
	j.status = StatusPaused
	state := m.stateLocked(j)
	m.mu.Unlock()

	m.persist(ctx, state)
	m.log.Info().Str("job_id", j.id).Msg("validation job paused")
	return nil
}

// Resume clears the pause flag and wakes the processor. For a job
// reinstated by RestoreActive the processor goroutine is launched here,
// picking up at the restored checkpoint cursor.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	j := m.job
	if j == nil || !j.active() || j.status == StatusStopping {
		m.mu.Unlock()
		return ErrNoActiveJob
	}
	if j.status == StatusRunning {
		m.mu.Unlock()
		return nil
	}
	j.pauseRequested = false
	j.status = StatusRunning
	relaunch := !j.processorRunning
	var runCtx context.Context
	if relaunch {
		j.processorRunning = true
		runCtx, j.cancel = context.WithCancel(context.Background())
	}
	state := m.stateLocked(j)
	m.cond.Broadcast()
	m.mu.Unlock()

	m.persist(ctx, state)
	if relaunch {
		go m.run(runCtx, j)
	}
	m.log.Info().Str("job_id", j.id).Bool("relaunched", relaunch).Msg("validation job resumed")
	return nil
}

// Stop cancels the active job. Idempotent: with nothing active it reports
// idle instead of an error. The final checkpoint is persisted before Stop
// returns.
func (m *Manager) Stop(ctx context.Context) (*StopResult, error) {
	m.mu.Lock()
	j := m.job
	if j == nil || !j.active() {
		if j != nil && j.status == StatusStopped {
			stats := finalStatsLocked(j)
			m.mu.Unlock()
			return &StopResult{Status: StatusIdle, FinalStats: stats}, nil
		}
		m.mu.Unlock()
		return &StopResult{Status: StatusIdle}, nil
	}

	j.stopRequested = true
	j.pauseRequested = false
	j.status = StatusStopping
	j.stoppedAt = time.Now()
	if j.cancel != nil {
		j.cancel()
	}
	m.cond.Broadcast()
	state := m.stateLocked(j)
	state.Status = StatusStopped
	m.mu.Unlock()

	// Stop checkpoints synchronously before returning.
	m.persist(ctx, state)

	m.mu.Lock()
	j.status = StatusStopped
	stats := finalStatsLocked(j)
	m.mu.Unlock()

	m.tel.SetGauge(telemetry.GaugeJobActive, 0)
	m.log.Info().
		Str("job_id", j.id).
		Int("processed", stats.ProcessedResources).
		Msg("validation job stopped")
	return &StopResult{Status: StatusStopped, FinalStats: stats}, nil
}

// GetProgress returns a snapshot of the current run. It always succeeds;
// with no job it reports idle.
func (m *Manager) GetProgress() *ProgressSnapshot {
	m.mu.Lock()
	j := m.job
	if j == nil {
		m.mu.Unlock()
		return &ProgressSnapshot{Status: StatusIdle}
	}
	snap := &ProgressSnapshot{
		Status:             j.status,
		JobID:              j.id,
		TotalResources:     j.total,
		ProcessedResources: j.processed,
		ValidResources:     j.valid,
		ErrorResources:     j.errored,
		CurrentBatch:       j.currentBatch,
		TotalBatches:       j.totalBatches,
	}
	if j.typeIndex < len(j.worklist) {
		snap.CurrentResourceType = j.worklist[j.typeIndex]
	}
	if j.typeIndex+1 < len(j.worklist) {
		snap.NextResourceType = j.worklist[j.typeIndex+1]
	}
	startedAt := j.startedAt
	stoppedAt := j.stoppedAt
	m.mu.Unlock()

	snap.ErrorDetails, snap.WarningDetails = m.metrics.Snapshot()

	if !startedAt.IsZero() {
		snap.StartedAt = &startedAt
		end := time.Now()
		if !stoppedAt.IsZero() {
			end = stoppedAt
		}
		elapsed := end.Sub(startedAt)
		snap.RunDurationMs = elapsed.Milliseconds()
		snap.Throughput = Throughput(elapsed, snap.ProcessedResources)
		snap.EstimatedTimeRemainingSec = ETA(snap.TotalResources-snap.ProcessedResources, snap.Throughput)
	}
	return snap
}

// RestoreActive reinstates the most recent restorable checkpoint for this
// manager's server as the active job, paused. The processor is not
// relaunched; the caller must explicitly Resume.
func (m *Manager) RestoreActive(ctx context.Context) (*ProgressSnapshot, error) {
	m.mu.Lock()
	if m.job != nil && m.job.active() {
		m.mu.Unlock()
		return m.GetProgress(), nil
	}
	m.mu.Unlock()

	state, err := m.store.LoadActiveForServer(ctx, m.opts.ServerID)
	if err != nil {
		return nil, err
	}
	if state == nil || !state.Active() {
		return nil, ErrNoRestorableJob
	}

	m.mu.Lock()
	if m.job != nil && m.job.active() {
		m.mu.Unlock()
		return m.GetProgress(), nil
	}
	j := &activeJob{
		id:             state.JobID,
		serverID:       state.ServerID,
		status:         StatusPaused,
		pauseRequested: true,
		cfg:            (&StartRequest{}).resolve(m.opts.BatchSize, m.opts.MaxConcurrent),
		worklist:       state.ResourceTypes,
		typeIndex:      state.CurrentTypeIndex,
		pageOffset:     state.PageOffset,
		total:          state.TotalResources,
		processed:      state.ProcessedResources,
		valid:          state.ValidResources,
		errored:        state.ErrorResources,
		startedAt:      state.StartedAt,
	}
	if j.startedAt.IsZero() {
		j.startedAt = time.Now()
	}
	m.job = j
	m.metrics.Reset()
	m.mu.Unlock()

	m.tel.SetGauge(telemetry.GaugeJobActive, 1)
	m.log.Info().
		Str("job_id", j.id).
		Int("type_index", j.typeIndex).
		Int("page_offset", j.pageOffset).
		Msg("restored active job from checkpoint; paused until resumed")
	return m.GetProgress(), nil
}

// StartCleanup runs periodic expiry of old checkpoint records until the
// context is cancelled.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := m.store.Cleanup(ctx)
				if err != nil {
					m.log.Error().Err(err).Msg("checkpoint cleanup failed")
					continue
				}
				if deleted > 0 {
					m.log.Info().Int64("deleted", deleted).Msg("expired checkpoints removed")
				}
			}
		}
	}()
}

// sourceReachable probes worklist types in order until one count succeeds.
// When every type is unreachable the start must fail rather than launch a
// job that can do nothing.
func (m *Manager) sourceReachable(ctx context.Context, worklist []string) bool {
	if m.src == nil {
		return false
	}
	for _, rt := range worklist {
		if _, err := m.src.Count(ctx, rt); err == nil {
			return true
		}
	}
	return false
}

func (m *Manager) resolveWorklist(req StartRequest) []string {
	pick := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, rt := range list {
			if rt != "" {
				out = append(out, rt)
			}
		}
		return out
	}
	if len(req.ResourceTypes) > 0 {
		return pick(req.ResourceTypes)
	}
	if len(m.opts.ResourceTypes) > 0 {
		return pick(m.opts.ResourceTypes)
	}
	return append([]string(nil), fhir.DefaultWorklist...)
}

// stateLocked builds the persistable state blob. Caller holds m.mu.
func (m *Manager) stateLocked(j *activeJob) *checkpoint.State {
	errs, warns := m.metrics.Snapshot()
	return &checkpoint.State{
		JobID:                  j.id,
		ServerID:               j.serverID,
		Status:                 persistableStatus(j.status),
		ResourceTypes:          append([]string(nil), j.worklist...),
		CurrentTypeIndex:       j.typeIndex,
		PageOffset:             j.pageOffset,
		TotalResources:         j.total,
		ProcessedResources:     j.processed,
		ValidResources:         j.valid,
		ErrorResources:         j.errored,
		ErrorsByResourceType:   errs.ByResourceType,
		WarningsByResourceType: warns.ByResourceType,
		StartedAt:              j.startedAt,
	}
}

// persistableStatus maps in-memory-only statuses onto the persisted set.
func persistableStatus(status string) string {
	switch status {
	case StatusStopping:
		return checkpoint.StatusStopped
	case StatusIdle:
		return checkpoint.StatusStopped
	}
	return status
}

func finalStatsLocked(j *activeJob) *FinalStats {
	stats := &FinalStats{
		JobID:              j.id,
		TotalResources:     j.total,
		ProcessedResources: j.processed,
		ValidResources:     j.valid,
		ErrorResources:     j.errored,
	}
	end := j.stoppedAt
	if end.IsZero() {
		end = time.Now()
	}
	if !j.startedAt.IsZero() {
		stats.RunDurationMs = end.Sub(j.startedAt).Milliseconds()
	}
	return stats
}

// persist saves a checkpoint best-effort. Failures are logged, counted and
// surfaced through the degraded gauge; they never abort the run.
func (m *Manager) persist(ctx context.Context, state *checkpoint.State) {
	if err := m.store.Save(ctx, state); err != nil {
		m.log.Error().Err(err).Str("job_id", state.JobID).Msg("checkpoint save failed; continuing in memory")
		m.tel.IncCounter(telemetry.MetricPersistFailures)
		m.tel.SetGauge(telemetry.GaugePersistenceDegraded, 1)
		return
	}
	m.tel.SetGauge(telemetry.GaugePersistenceDegraded, 0)
}
