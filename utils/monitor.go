package utils

import (
	"whatsapp-branch-bot/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var allStatuses = []types.Status{
	types.StatusInitializing,
	types.StatusAwaitingScan,
	types.StatusConnected,
	types.StatusResetting,
}

var (
	sessionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "branch_session_status",
		Help: "1 for the current status of each branch session, 0 otherwise",
	}, []string{"branch", "status"})
	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branch_session_reconnects_total",
		Help: "Session restarts by close reason",
	}, []string{"branch", "reason"})
	inboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branch_inbound_messages_total",
		Help: "Inbound messages with extractable text",
	}, []string{"branch"})
	inquiries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branch_inquiries_total",
		Help: "Inbound messages classified as inquiries",
	}, []string{"branch"})
	replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branch_redirect_replies_total",
		Help: "Redirect replies by result (sent, failed, limited, dropped)",
	}, []string{"branch", "result"})
	dashboardClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_clients",
		Help: "Connected dashboard websocket clients",
	})
)

// SetSessionStatus marks status as the only active status of branch
func SetSessionStatus(branch string, status types.Status) {
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		sessionStatus.WithLabelValues(branch, string(s)).Set(v)
	}
}

func RecordReconnect(branch, reason string) {
	reconnects.WithLabelValues(branch, reason).Inc()
}

func RecordInbound(branch string) {
	inboundMessages.WithLabelValues(branch).Inc()
}

func RecordInquiry(branch string) {
	inquiries.WithLabelValues(branch).Inc()
}

// RecordReply counts a redirect reply outcome
func RecordReply(branch, result string) {
	replies.WithLabelValues(branch, result).Inc()
}

func IncrementDashboardClients() {
	dashboardClients.Inc()
}

func DecrementDashboardClients() {
	dashboardClients.Dec()
}
