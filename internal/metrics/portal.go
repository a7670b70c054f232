package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cohortflow",
			Subsystem: "portal",
			Name:      "status_transitions_total",
			Help:      "申请状态迁移次数。",
		},
		[]string{"from", "to"},
	)

	reviewsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cohortflow",
			Subsystem: "portal",
			Name:      "reviews_submitted_total",
			Help:      "评审提交次数（含覆盖提交）。",
		},
		[]string{"recommendation"},
	)

	documentsAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cohortflow",
			Subsystem: "portal",
			Name:      "documents_added_total",
			Help:      "登记的申请材料数量。",
		},
	)

	exportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cohortflow",
			Subsystem: "portal",
			Name:      "exports_total",
			Help:      "CSV 导出次数。",
		},
		[]string{"mode"},
	)

	accessDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cohortflow",
			Subsystem: "portal",
			Name:      "access_denied_total",
			Help:      "被角色检查拒绝的过程调用次数。",
		},
		[]string{"procedure", "kind"},
	)
)

func ObserveStatusTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func ObserveReviewSubmitted(recommendation string) {
	reviewsSubmitted.WithLabelValues(recommendation).Inc()
}

func ObserveDocumentAdded() {
	documentsAdded.Inc()
}

// ObserveExport records an export; mode is "sync" or "async".
func ObserveExport(mode string) {
	exportsGenerated.WithLabelValues(mode).Inc()
}

func ObserveAccessDenied(procedure, kind string) {
	accessDenied.WithLabelValues(procedure, kind).Inc()
}
