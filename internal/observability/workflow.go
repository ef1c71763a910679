package observability

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics counts expense transitions and dropped chat deliveries.
type WorkflowMetrics struct {
	transitions   *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow collectors on registerer.
func NewWorkflowMetrics(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expenseflow_transitions_total",
		Help: "Applied expense transitions by action and resulting status.",
	}, []string{"action", "status"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expenseflow_actions_refused_total",
		Help: "Actions refused by the approval guard, by reason.",
	}, []string{"action", "reason"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expenseflow_notification_failures_total",
		Help: "Chat deliveries dropped per role and operation.",
	}, []string{"role", "op"})
	registerer.MustRegister(transitions, rejected, failures)
	return &WorkflowMetrics{transitions: transitions, rejected: rejected, notifyFailure: failures}
}

// Transition counts a persisted transition.
func (m *WorkflowMetrics) Transition(action, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, status).Inc()
}

// Refused counts an action the guard turned down.
func (m *WorkflowMetrics) Refused(action, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(action, reason).Inc()
}

// NotificationFailed counts a dropped send or delete.
func (m *WorkflowMetrics) NotificationFailed(role, op string) {
	if m == nil {
		return
	}
	m.notifyFailure.WithLabelValues(role, op).Inc()
}
