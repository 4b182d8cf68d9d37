package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - количество ошибок
	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Общее количество HTTP ошибок",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	// Сигналинг - входящие сообщения по типам
	signalingMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_messages_total",
			Help: "Количество обработанных сигнальных сообщений",
		},
		[]string{"type"},
	)

	// Сигналинг - отклонённые сообщения и входы по коду ошибки
	signalingRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_rejected_total",
			Help: "Количество отклонённых сигнальных сообщений",
		},
		[]string{"code"},
	)

	roomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_active",
			Help: "Количество комнат с хотя бы одним участником",
		},
	)

	// TURN relay - активные аллокации
	turnAllocationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "turn_allocations_active",
			Help: "Количество активных TURN аллокаций",
		},
	)

	turnAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turn_auth_failures_total",
			Help: "Количество отклонённых TURN авторизаций",
		},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	// Записываем ошибки (статус >= 400)
	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func RecordSignalingMessage(msgType string) {
	signalingMessagesTotal.WithLabelValues(msgType).Inc()
}

func RecordSignalingRejected(code string) {
	signalingRejectedTotal.WithLabelValues(code).Inc()
}

func SetRoomsActive(count int) {
	roomsActive.Set(float64(count))
}

func IncrementTurnAllocations() {
	turnAllocationsActive.Inc()
}

func DecrementTurnAllocations() {
	turnAllocationsActive.Dec()
}

func RecordTurnAuthFailure() {
	turnAuthFailuresTotal.Inc()
}
