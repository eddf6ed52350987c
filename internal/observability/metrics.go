package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	httpErrorsTotal           *prometheus.CounterVec
	chatConnectionsActive     prometheus.Gauge
	chatMessagesTotal         *prometheus.CounterVec
	realtimeDroppedTotal      *prometheus.CounterVec
	notificationsCreatedTotal *prometheus.CounterVec
	deliveryFailuresTotal     *prometheus.CounterVec
	attachmentUploadsTotal    *prometheus.CounterVec
	attachmentRejectedTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		chatConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of open realtime connections on this node.",
		})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages persisted, by origin transport.",
		}, []string{"transport"})

		realtimeDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Realtime events dropped because a subscriber queue was full.",
		}, []string{"subscriber"})

		notificationsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications persisted, by category.",
		}, []string{"category"})

		deliveryFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_delivery_failures_total",
			Help: "Best-effort notification deliveries that failed, by channel.",
		}, []string{"channel"})

		attachmentUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_uploads_total",
			Help: "Attachments accepted into storage, by MIME type.",
		}, []string{"mime"})

		attachmentRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_rejected_total",
			Help: "Attachments rejected, by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			chatConnectionsActive,
			chatMessagesTotal,
			realtimeDroppedTotal,
			notificationsCreatedTotal,
			deliveryFailuresTotal,
			attachmentUploadsTotal,
			attachmentRejectedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ChatConnections exposes the open connection gauge.
func ChatConnections() prometheus.Gauge {
	RegisterMetrics()
	return chatConnectionsActive
}

// ChatMessages exposes the persisted message counter.
func ChatMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// RealtimeDropped exposes the dropped event counter.
func RealtimeDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeDroppedTotal
}

// NotificationsCreated exposes the notification counter.
func NotificationsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsCreatedTotal
}

// DeliveryFailures exposes the failed delivery counter.
func DeliveryFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return deliveryFailuresTotal
}

// AttachmentUploads exposes the accepted attachment counter.
func AttachmentUploads() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentUploadsTotal
}

// AttachmentRejected exposes the rejected attachment counter.
func AttachmentRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentRejectedTotal
}
