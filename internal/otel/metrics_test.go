package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.SaveDuration == nil {
		t.Error("SaveDuration is nil")
	}
	if m.DeleteDuration == nil {
		t.Error("DeleteDuration is nil")
	}
	if m.RestoreDuration == nil {
		t.Error("RestoreDuration is nil")
	}
	if m.Compensations == nil {
		t.Error("Compensations is nil")
	}
	if m.FanoutWrites == nil {
		t.Error("FanoutWrites is nil")
	}
	if m.DocumentSaves == nil {
		t.Error("DocumentSaves is nil")
	}
	if m.ExportDuration == nil {
		t.Error("ExportDuration is nil")
	}
	if m.RetentionPurged == nil {
		t.Error("RetentionPurged is nil")
	}
	if m.RetentionDuration == nil {
		t.Error("RetentionDuration is nil")
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	// Disabled OTel returns noop meter — metrics should still create without error.
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}
