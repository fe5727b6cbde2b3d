// Package telemetry exposes the validation service's operational metrics
// (counters and gauges backed by atomics) with Prometheus text exposition,
// using only standard library constructs.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
)

// Metric names used across the service.
const (
	MetricRecordsProcessed   = "validation_records_processed_total"
	MetricRecordsValid       = "validation_records_valid_total"
	MetricRecordsInvalid     = "validation_records_invalid_total"
	MetricIssues             = "validation_issues_total"
	MetricPagesFetched       = "validation_pages_fetched_total"
	MetricTypesSkipped       = "validation_types_skipped_total"
	MetricPersistFailures    = "checkpoint_persist_failures_total"
	GaugePersistenceDegraded = "checkpoint_persistence_degraded"
	GaugeJobActive           = "validation_job_active"
)

// counterStore holds monotonically increasing counters keyed by name,
// using double-checked locking so the hot path is a single atomic add.
type counterStore struct {
	mu     sync.RWMutex
	values map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{values: make(map[string]*int64)}
}

func (s *counterStore) cell(key string) *int64 {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.values[key]; ok {
		return v
	}
	v = new(int64)
	s.values[key] = v
	return v
}

func (s *counterStore) add(key string, delta int64) {
	atomic.AddInt64(s.cell(key), delta)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return atomic.LoadInt64(v)
	}
	return 0
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = atomic.LoadInt64(v)
	}
	return out
}

// gaugeStore holds settable values, same layout as counterStore.
type gaugeStore struct {
	mu     sync.RWMutex
	values map[string]*int64
}

func newGaugeStore() *gaugeStore {
	return &gaugeStore{values: make(map[string]*int64)}
}

func (s *gaugeStore) cell(key string) *int64 {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.values[key]; ok {
		return v
	}
	v = new(int64)
	s.values[key] = v
	return v
}

func (s *gaugeStore) set(key string, val int64) {
	atomic.StoreInt64(s.cell(key), val)
}

func (s *gaugeStore) get(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return atomic.LoadInt64(v)
	}
	return 0
}

func (s *gaugeStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = atomic.LoadInt64(v)
	}
	return out
}

// Provider is the process-wide metrics registry.
type Provider struct {
	serviceName string
	counters    *counterStore
	gauges      *gaugeStore
}

// NewProvider creates a provider tagged with the service name.
func NewProvider(serviceName string) *Provider {
	return &Provider{
		serviceName: serviceName,
		counters:    newCounterStore(),
		gauges:      newGaugeStore(),
	}
}

// IncCounter increments a named counter by one.
func (p *Provider) IncCounter(name string) { p.counters.add(name, 1) }

// AddCounter increments a named counter by delta.
func (p *Provider) AddCounter(name string, delta int64) { p.counters.add(name, delta) }

// Counter returns the current value of a named counter.
func (p *Provider) Counter(name string) int64 { return p.counters.get(name) }

// SetGauge sets a named gauge.
func (p *Provider) SetGauge(name string, val int64) { p.gauges.set(name, val) }

// Gauge returns the current value of a named gauge.
func (p *Provider) Gauge(name string) int64 { return p.gauges.get(name) }

// PersistenceDegraded reports whether checkpoint persistence is currently
// failing. Wired into the readiness probe.
func (p *Provider) PersistenceDegraded() bool {
	return p.gauges.get(GaugePersistenceDegraded) != 0
}

// PrometheusHandler serves all registered metrics in Prometheus text
// exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		writeFamily(&b, p.counters.snapshot(), "counter")
		writeFamily(&b, p.gauges.snapshot(), "gauge")

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func writeFamily(b *strings.Builder, values map[string]int64, typ string) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
		fmt.Fprintf(b, "%s %d\n", name, values[name])
	}
}
