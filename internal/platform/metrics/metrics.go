package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lifecycle service.
type Metrics struct {
	EntitiesArchived    *prometheus.CounterVec
	EntitiesRestored    *prometheus.CounterVec
	EntitiesHardDeleted *prometheus.CounterVec
	EntitiesPurged      prometheus.Counter
	ChildrenUnassigned  prometheus.Counter
	ActivityWriteErrors prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EntitiesArchived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsportal_entities_archived_total",
			Help: "Entities archived, by entity type",
		}, []string{"entity_type"}),
		EntitiesRestored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsportal_entities_restored_total",
			Help: "Entities restored from archive, by entity type",
		}, []string{"entity_type"}),
		EntitiesHardDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opsportal_entities_hard_deleted_total",
			Help: "Entities permanently deleted, by entity type",
		}, []string{"entity_type"}),
		EntitiesPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsportal_entities_purged_total",
			Help: "Entities removed by the retention sweep",
		}),
		ChildrenUnassigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsportal_children_unassigned_total",
			Help: "Child entities moved to the unassigned pool by a parent archive",
		}),
		ActivityWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opsportal_activity_write_errors_total",
			Help: "Best-effort activity log writes that failed and were swallowed",
		}),
	}
}

func (m *Metrics) IncArchived(entityType string) {
	if m != nil {
		m.EntitiesArchived.WithLabelValues(entityType).Inc()
	}
}

func (m *Metrics) IncRestored(entityType string) {
	if m != nil {
		m.EntitiesRestored.WithLabelValues(entityType).Inc()
	}
}

func (m *Metrics) IncHardDeleted(entityType string) {
	if m != nil {
		m.EntitiesHardDeleted.WithLabelValues(entityType).Inc()
	}
}

func (m *Metrics) AddPurged(n int) {
	if m != nil && n > 0 {
		m.EntitiesPurged.Add(float64(n))
	}
}

func (m *Metrics) AddUnassigned(n int64) {
	if m != nil && n > 0 {
		m.ChildrenUnassigned.Add(float64(n))
	}
}

func (m *Metrics) IncActivityWriteError() {
	if m != nil {
		m.ActivityWriteErrors.Inc()
	}
}
