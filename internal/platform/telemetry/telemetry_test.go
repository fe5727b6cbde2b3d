package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestProvider_Counters(t *testing.T) {
	p := NewProvider("test")

	p.IncCounter(MetricRecordsProcessed)
	p.AddCounter(MetricRecordsProcessed, 4)

	if got := p.Counter(MetricRecordsProcessed); got != 5 {
		t.Errorf("counter = %d, want 5", got)
	}
	if got := p.Counter("never_touched"); got != 0 {
		t.Errorf("untouched counter = %d, want 0", got)
	}
}

func TestProvider_ConcurrentIncrements(t *testing.T) {
	p := NewProvider("test")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.IncCounter(MetricIssues)
			}
		}()
	}
	wg.Wait()

	if got := p.Counter(MetricIssues); got != 2000 {
		t.Errorf("counter = %d, want 2000", got)
	}
}

func TestProvider_DegradedGauge(t *testing.T) {
	p := NewProvider("test")

	if p.PersistenceDegraded() {
		t.Error("fresh provider should not be degraded")
	}
	p.SetGauge(GaugePersistenceDegraded, 1)
	if !p.PersistenceDegraded() {
		t.Error("expected degraded after gauge set")
	}
	p.SetGauge(GaugePersistenceDegraded, 0)
	if p.PersistenceDegraded() {
		t.Error("expected recovery after gauge cleared")
	}
}

func TestProvider_PrometheusExposition(t *testing.T) {
	p := NewProvider("test")
	p.AddCounter(MetricRecordsProcessed, 7)
	p.SetGauge(GaugeJobActive, 1)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := p.PrometheusHandler()(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "validation_records_processed_total 7") {
		t.Errorf("missing counter line in:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE validation_job_active gauge") {
		t.Errorf("missing gauge TYPE line in:\n%s", body)
	}
}
