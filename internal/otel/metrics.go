package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all TaskVault metrics instruments.
type Metrics struct {
	SaveDuration      metric.Float64Histogram
	DeleteDuration    metric.Float64Histogram
	RestoreDuration   metric.Float64Histogram
	Compensations     metric.Int64Counter
	FanoutWrites      metric.Int64Counter
	DocumentSaves     metric.Int64Counter
	ExportDuration    metric.Float64Histogram
	RetentionPurged   metric.Int64Counter
	RetentionDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.SaveDuration, err = meter.Float64Histogram("taskvault.save.duration",
		metric.WithDescription("Entity save duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.DeleteDuration, err = meter.Float64Histogram("taskvault.delete.duration",
		metric.WithDescription("Coordinated delete duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RestoreDuration, err = meter.Float64Histogram("taskvault.restore.duration",
		metric.WithDescription("Coordinated restore duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.Compensations, err = meter.Int64Counter("taskvault.coordinator.compensations",
		metric.WithDescription("Compensating rollbacks performed after partial failures"),
	)
	if err != nil {
		return nil, err
	}

	m.FanoutWrites, err = meter.Int64Counter("taskvault.repository.fanout_writes",
		metric.WithDescription("Per-backend writes issued by unified repositories"),
	)
	if err != nil {
		return nil, err
	}

	m.DocumentSaves, err = meter.Int64Counter("taskvault.document.saves",
		metric.WithDescription("Automerge document persists"),
	)
	if err != nil {
		return nil, err
	}

	m.ExportDuration, err = meter.Float64Histogram("taskvault.export.duration",
		metric.WithDescription("Document export duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RetentionPurged, err = meter.Int64Counter("taskvault.retention.purged",
		metric.WithDescription("Rows and entries removed by retention sweeps"),
	)
	if err != nil {
		return nil, err
	}

	m.RetentionDuration, err = meter.Float64Histogram("taskvault.retention.duration",
		metric.WithDescription("Retention sweep duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
