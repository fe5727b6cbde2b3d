package job

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medvertical/records-sub011/internal/checkpoint"
	"github.com/medvertical/records-sub011/internal/fhir"
	"github.com/medvertical/records-sub011/internal/platform/telemetry"
	"github.com/medvertical/records-sub011/internal/source"
	"github.com/medvertical/records-sub011/internal/validation"
)

type fetchCall struct {
	resourceType string
	offset       int
}

// fakeSource serves canned resources per type with optional per-type
// failures and a fetch delay to keep jobs observable mid-flight.
type fakeSource struct {
	mu      sync.Mutex
	data    map[string][]fhir.Resource
	fail    map[string]bool
	delay   time.Duration
	fetches []fetchCall
}

func (s *fakeSource) Count(_ context.Context, rt string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[rt] {
		return 0, fmt.Errorf("source unreachable for %s", rt)
	}
	return len(s.data[rt]), nil
}

func (s *fakeSource) FetchPage(ctx context.Context, rt string, offset, count int) (*source.Page, error) {
	s.mu.Lock()
	if s.fail[rt] {
		s.mu.Unlock()
		return nil, fmt.Errorf("source unreachable for %s", rt)
	}
	s.fetches = append(s.fetches, fetchCall{resourceType: rt, offset: offset})
	all := s.data[rt]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	page := &source.Page{Total: len(all)}
	for i := offset; i < offset+count && i < len(all); i++ {
		page.Resources = append(page.Resources, all[i])
	}
	return page, nil
}

func (s *fakeSource) fetchLog() []fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fetchCall(nil), s.fetches...)
}

func makePatients(n int) []fhir.Resource {
	out := make([]fhir.Resource, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fhir.Resource{
			"resourceType": "Patient",
			"id":           fmt.Sprintf("pat-%d", i),
			"name": []interface{}{
				map[string]interface{}{"family": fmt.Sprintf("Fam%d", i)},
			},
		})
	}
	return out
}

func newTestManager(src source.Client, store checkpoint.Store, opts Options) *Manager {
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	engine := validation.NewEngine(validation.NewCodeRegistry())
	return NewManager(src, engine, store, telemetry.NewProvider("test"), zerolog.Nop(), opts)
}

func waitForStatus(t *testing.T, m *Manager, want string) *ProgressSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.GetProgress()
		if snap.Status == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, last was %q", want, m.GetProgress().Status)
	return nil
}

func waitForProcessed(t *testing.T, m *Manager, atLeast int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.GetProgress().ProcessedResources >= atLeast {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d processed, at %d", atLeast, m.GetProgress().ProcessedResources)
}

func mustStart(t *testing.T, m *Manager, req StartRequest) *StartResult {
	t.Helper()
	res, err := m.Start(context.Background(), req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res
}

func TestManager_RunToCompletion(t *testing.T) {
	src := &fakeSource{data: map[string][]fhir.Resource{"Patient": makePatients(5)}}
	m := newTestManager(src, nil, Options{ServerID: 1})

	res := mustStart(t, m, StartRequest{
		ResourceTypes: []string{"Patient"},
		Config:        &StartConfig{BatchSize: 2},
	})
	if res.JobID == "" || res.AlreadyRunning {
		t.Fatalf("unexpected start result: %+v", res)
	}

	snap := waitForStatus(t, m, StatusComplete)
	if snap.ProcessedResources != 5 || snap.TotalResources != 5 {
		t.Errorf("processed/total = %d/%d, want 5/5", snap.ProcessedResources, snap.TotalResources)
	}
	if snap.ValidResources != 5 || snap.ErrorResources != 0 {
		t.Errorf("valid/errors = %d/%d, want 5/0", snap.ValidResources, snap.ErrorResources)
	}
}

func TestManager_DuplicateStartReturnsSameJob(t *testing.T) {
	src := &fakeSource{
		data:  map[string][]fhir.Resource{"Patient": makePatients(20)},
		delay: 20 * time.Millisecond,
	}
	m := newTestManager(src, nil, Options{ServerID: 1})

	first := mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient"}, Config: &StartConfig{BatchSize: 1}})
	second := mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient"}})

	if !second.AlreadyRunning {
		t.Error("second start should report the job as already running")
	}
	if second.JobID != first.JobID {
		t.Errorf("second start returned job %s, want %s", second.JobID, first.JobID)
	}

	if _, err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestManager_ConcurrentStartsLaunchOneJob(t *testing.T) {
	src := &fakeSource{
		data:  map[string][]fhir.Resource{"Patient": makePatients(50)},
		delay: 10 * time.Millisecond,
	}
	m := newTestManager(src, nil, Options{ServerID: 1})

	const callers = 8
	results := make([]*StartResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Start(context.Background(), StartRequest{ResourceTypes: []string{"Patient"}, Config: &StartConfig{BatchSize: 1}})
			if err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	launched := 0
	for _, res := range results {
		if res == nil {
			t.Fatal("missing start result")
		}
		if res.JobID != results[0].JobID {
			t.Errorf("diverging job ids: %s vs %s", res.JobID, results[0].JobID)
		}
		if !res.AlreadyRunning {
			launched++
		}
	}
	if launched != 1 {
		t.Errorf("%d starts launched a job, want exactly 1", launched)
	}

	if _, err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestManager_PausePreservesCounters(t *testing.T) {
	src := &fakeSource{
		data:  map[string][]fhir.Resource{"Patient": makePatients(10)},
		delay: 15 * time.Millisecond,
	}
	m := newTestManager(src, nil, Options{ServerID: 1})
	mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient"}, Config: &StartConfig{BatchSize: 1}})

	waitForProcessed(t, m, 3)
	if err := m.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	// Let any in-flight page drain, then confirm progress is frozen.
	time.Sleep(100 * time.Millisecond)
	before := m.GetProgress()
	if before.Status != StatusPaused {
		t.Fatalf("status = %s, want paused", before.Status)
	}
	time.Sleep(150 * time.Millisecond)
	after := m.GetProgress()
	if after.ProcessedResources != before.ProcessedResources {
		t.Errorf("processed moved while paused: %d -> %d", before.ProcessedResources, after.ProcessedResources)
	}

	// Pausing a paused job is a no-op, not an error.
	if err := m.Pause(context.Background()); err != nil {
		t.Errorf("second Pause: %v", err)
	}

	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap := waitForStatus(t, m, StatusComplete)
	if snap.ProcessedResources != 10 {
		t.Errorf("processed = %d after resume, want 10", snap.ProcessedResources)
	}
}

func TestManager_PauseResumeWithoutJob(t *testing.T) {
	m := newTestManager(&fakeSource{data: map[string][]fhir.Resource{}}, nil, Options{ServerID: 1})

	if err := m.Pause(context.Background()); err != ErrNoActiveJob {
		t.Errorf("Pause with no job = %v, want ErrNoActiveJob", err)
	}
	if err := m.Resume(context.Background()); err != ErrNoActiveJob {
		t.Errorf("Resume with no job = %v, want ErrNoActiveJob", err)
	}
}

func TestManager_MonotonicProgress(t *testing.T) {
	src := &fakeSource{
		data:  map[string][]fhir.Resource{"Patient": makePatients(15)},
		delay: 5 * time.Millisecond,
	}
	m := newTestManager(src, nil, Options{ServerID: 1})
	mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient"}, Config: &StartConfig{BatchSize: 2}})

	last := -1
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.GetProgress()
		if snap.ProcessedResources < last {
			t.Fatalf("processed went backwards: %d -> %d", last, snap.ProcessedResources)
		}
		last = snap.ProcessedResources
		if snap.Status == StatusComplete {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("job did not complete")
}

func TestManager_StopIsIdempotent(t *testing.T) {
	src := &fakeSource{
		data:  map[string][]fhir.Resource{"Patient": makePatients(30)},
		delay: 10 * time.Millisecond,
	}
	store := checkpoint.NewMemoryStore()
	m := newTestManager(src, store, Options{ServerID: 1})

	// Stop with nothing running reports idle, not an error.
	res, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("idle Stop: %v", err)
	}
	if res.Status != StatusIdle {
		t.Errorf("idle Stop status = %s, want idle", res.Status)
	}

	started := mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient"}, Config: &StartConfig{BatchSize: 2}})
	waitForProcessed(t, m, 2)

	res, err = m.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Status != StatusStopped || res.FinalStats == nil {
		t.Fatalf("Stop result = %+v, want stopped with finalStats", res)
	}

	// The final checkpoint is persisted synchronously before Stop returns.
	state, err := store.Load(context.Background(), started.JobID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state == nil || state.Status != checkpoint.StatusStopped {
		t.Fatalf("persisted state = %+v, want stopped", state)
	}

	again, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if again.Status != StatusIdle {
		t.Errorf("second Stop status = %s, want idle", again.Status)
	}
}

func TestManager_RestoreActiveAndResume(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	if err := store.Save(context.Background(), &checkpoint.State{
		JobID:              "job-restore",
		ServerID:           1,
		Status:             checkpoint.StatusRunning,
		ResourceTypes:      []string{"Patient", "Observation"},
		CurrentTypeIndex:   1,
		PageOffset:         2,
		TotalResources:     9,
		ProcessedResources: 7,
		ValidResources:     7,
		StartedAt:          time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	observations := make([]fhir.Resource, 0, 4)
	for i := 0; i < 4; i++ {
		observations = append(observations, fhir.Resource{
			"resourceType": "Observation",
			"id":           fmt.Sprintf("obs-%d", i),
			"status":       "final",
			"code": map[string]interface{}{
				"coding": []interface{}{
					map[string]interface{}{"system": "http://loinc.org", "code": "718-7"},
				},
			},
			"valueQuantity": map[string]interface{}{"value": 7.2},
		})
	}
	src := &fakeSource{data: map[string][]fhir.Resource{
		"Patient":     makePatients(5),
		"Observation": observations,
	}}
	m := newTestManager(src, store, Options{ServerID: 1, BatchSize: 2})

	snap, err := m.RestoreActive(context.Background())
	if err != nil {
		t.Fatalf("RestoreActive: %v", err)
	}
	if snap.Status != StatusPaused || snap.JobID != "job-restore" {
		t.Fatalf("restored snapshot = %+v, want paused job-restore", snap)
	}
	if snap.ProcessedResources != 7 {
		t.Errorf("restored processed = %d, want 7", snap.ProcessedResources)
	}
	if len(src.fetchLog()) != 0 {
		t.Fatal("restore must not relaunch the processor")
	}

	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	done := waitForStatus(t, m, StatusComplete)
	if done.ProcessedResources != 9 {
		t.Errorf("processed = %d after resumed run, want 9", done.ProcessedResources)
	}

	for _, call := range src.fetchLog() {
		if call.resourceType == "Patient" {
			t.Errorf("type before the checkpoint cursor was re-fetched: %+v", call)
		}
		if call.resourceType == "Observation" && call.offset < 2 {
			t.Errorf("records before the checkpoint offset were re-fetched: %+v", call)
		}
	}
}

func TestManager_RestoreActiveNothingToRestore(t *testing.T) {
	m := newTestManager(&fakeSource{data: map[string][]fhir.Resource{}}, nil, Options{ServerID: 1})

	if _, err := m.RestoreActive(context.Background()); err != ErrNoRestorableJob {
		t.Errorf("RestoreActive = %v, want ErrNoRestorableJob", err)
	}
}

func TestManager_BrokenRecordIsCountedNotFatal(t *testing.T) {
	records := makePatients(3)
	records = append(records, fhir.Resource{"id": "mystery"}) // no resourceType
	src := &fakeSource{data: map[string][]fhir.Resource{"Patient": records}}
	m := newTestManager(src, nil, Options{ServerID: 1})

	mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient"}, Config: &StartConfig{BatchSize: 2}})
	snap := waitForStatus(t, m, StatusComplete)

	if snap.ProcessedResources != 4 {
		t.Errorf("processed = %d, want 4 (broken record still counts)", snap.ProcessedResources)
	}
	if snap.ErrorResources != 1 {
		t.Errorf("errorResources = %d, want 1", snap.ErrorResources)
	}
	if snap.ErrorDetails == nil || snap.ErrorDetails.Total < 1 {
		t.Errorf("errorDetails.total should be at least 1, got %+v", snap.ErrorDetails)
	}
}

func TestManager_UnreachableTypeIsSkipped(t *testing.T) {
	src := &fakeSource{
		data: map[string][]fhir.Resource{
			"Patient":   makePatients(3),
			"Condition": nil,
			"CareTeam":  makePatients(0),
		},
		fail: map[string]bool{"Condition": true},
	}
	m := newTestManager(src, nil, Options{ServerID: 1})

	mustStart(t, m, StartRequest{ResourceTypes: []string{"Patient", "Condition", "CareTeam"}})
	snap := waitForStatus(t, m, StatusComplete)

	if snap.ProcessedResources != 3 {
		t.Errorf("processed = %d, want 3 with the broken type skipped", snap.ProcessedResources)
	}
}

func TestManager_StartFailsWhenSourceUnreachable(t *testing.T) {
	src := &fakeSource{
		data: map[string][]fhir.Resource{},
		fail: map[string]bool{"Patient": true, "Observation": true},
	}
	m := newTestManager(src, nil, Options{ServerID: 1})

	_, err := m.Start(context.Background(), StartRequest{ResourceTypes: []string{"Patient", "Observation"}})
	if err != ErrNoSourceConfigured {
		t.Fatalf("Start = %v, want ErrNoSourceConfigured", err)
	}
	if got := m.GetProgress().Status; got != StatusIdle {
		t.Errorf("status after failed start = %s, want idle", got)
	}
}
