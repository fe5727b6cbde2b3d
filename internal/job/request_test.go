package job

import (
	"strings"
	"testing"
)

func TestStartRequest_ValidateAcceptsEmpty(t *testing.T) {
	req := StartRequest{}
	if errs := req.Validate(); len(errs) != 0 {
		t.Errorf("empty request should validate, got %v", errs)
	}
}

func TestStartRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		req       StartRequest
		wantField string
	}{
		{
			name:      "empty resource type entry",
			req:       StartRequest{ResourceTypes: []string{"Patient", ""}},
			wantField: "resourceTypes[1]",
		},
		{
			name:      "unknown aspect",
			req:       StartRequest{ValidationAspects: map[string]bool{"vibes": true}},
			wantField: "validationAspects.vibes",
		},
		{
			name:      "negative batch size",
			req:       StartRequest{Config: &StartConfig{BatchSize: -1}},
			wantField: "config.batchSize",
		},
		{
			name:      "oversized batch size",
			req:       StartRequest{Config: &StartConfig{BatchSize: 100000}},
			wantField: "config.batchSize",
		},
		{
			name:      "negative concurrency",
			req:       StartRequest{Config: &StartConfig{MaxConcurrent: -3}},
			wantField: "config.maxConcurrent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if strings.HasPrefix(e, tt.wantField) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s in %v", tt.wantField, errs)
			}
		})
	}
}

func TestStartRequest_ValidateKnownAspects(t *testing.T) {
	req := StartRequest{ValidationAspects: map[string]bool{
		"structural": true, "profile": false, "terminology": true,
		"reference": true, "business-rule": false, "metadata": true,
	}}
	if errs := req.Validate(); len(errs) != 0 {
		t.Errorf("all six known aspects should validate, got %v", errs)
	}
}

func TestStartRequest_Resolve(t *testing.T) {
	req := StartRequest{Config: &StartConfig{BatchSize: 25}}
	cfg := req.resolve(100, 8)

	if cfg.batchSize != 25 {
		t.Errorf("batchSize = %d, want explicit 25", cfg.batchSize)
	}
	if cfg.maxConcurrent != 8 {
		t.Errorf("maxConcurrent = %d, want default 8", cfg.maxConcurrent)
	}

	cfg = (&StartRequest{}).resolve(0, 0)
	if cfg.batchSize != defaultBatchSize || cfg.maxConcurrent != defaultWorkers {
		t.Errorf("zero defaults should fall back to built-ins, got %+v", cfg)
	}
}

func TestStartRequest_ResolveAspects(t *testing.T) {
	req := StartRequest{ValidationAspects: map[string]bool{"terminology": false}}
	cfg := req.resolve(10, 2)

	if cfg.aspects.Enabled("terminology") {
		t.Error("terminology should be disabled")
	}
	if !cfg.aspects.Enabled("structural") {
		t.Error("unlisted aspects default to enabled")
	}
}
