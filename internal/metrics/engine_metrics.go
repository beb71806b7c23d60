package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics содержит метрики движка жизненного цикла заказов.
type EngineMetrics struct {
	// Счётчики заказов
	ordersCreated     prometheus.Counter
	ordersCancelled   prometheus.Counter
	transitions       *prometheus.CounterVec
	transitionsDenied prometheus.Counter

	// Счётчики склада
	reservations        prometheus.Counter
	releases            prometheus.Counter
	insufficientStock   prometheus.Counter
	inventoryAdjustment prometheus.Counter

	// Счётчики возвратов
	returnsRequested prometheus.Counter
	returnsApproved  prometheus.Counter
	returnsRejected  prometheus.Counter

	// Bulk-операции
	bulkStarted   prometheus.Counter
	bulkCompleted prometheus.Counter
	bulkFailed    prometheus.Counter
	bulkItems     *prometheus.CounterVec
	bulkDuration  prometheus.Histogram
	activeBulkOps prometheus.Gauge

	// Уведомления
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter
}

// NewEngineMetrics создаёт метрики, регистрируя их в реестре по умолчанию.
func NewEngineMetrics() *EngineMetrics {
	return newEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_order_transitions_total",
			Help: "Total number of committed order status transitions",
		}, []string{"status"}),
		transitionsDenied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_order_transitions_denied_total",
			Help: "Total number of transitions rejected by the status graph",
		}),
		reservations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_inventory_reservations_total",
			Help: "Total number of successful inventory reservations",
		}),
		releases: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_inventory_releases_total",
			Help: "Total number of inventory releases",
		}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_inventory_insufficient_total",
			Help: "Total number of reservations rejected for insufficient stock",
		}),
		inventoryAdjustment: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_inventory_adjustments_total",
			Help: "Total number of administrative inventory adjustments",
		}),
		returnsRequested: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_returns_requested_total",
			Help: "Total number of return requests created",
		}),
		returnsApproved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_returns_approved_total",
			Help: "Total number of return requests approved",
		}),
		returnsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_returns_rejected_total",
			Help: "Total number of return requests rejected",
		}),
		bulkStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_bulk_started_total",
			Help: "Total number of bulk operations started",
		}),
		bulkCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_bulk_completed_total",
			Help: "Total number of bulk operations completed",
		}),
		bulkFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_bulk_failed_total",
			Help: "Total number of bulk operations failed or cancelled",
		}),
		bulkItems: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_bulk_items_total",
			Help: "Total number of bulk items processed",
		}, []string{"result"}),
		bulkDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_bulk_duration_seconds",
			Help:    "Duration of bulk operation runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		activeBulkOps: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "fulfillment_active_bulk_operations",
			Help: "Number of bulk operations currently running",
		}),
		notificationsSent: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_notifications_sent_total",
			Help: "Total number of lifecycle notifications delivered to the sink",
		}),
		notificationsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_notifications_failed_total",
			Help: "Total number of lifecycle notifications the sink rejected",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *EngineMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *EngineMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordTransition увеличивает счётчик зафиксированных переходов по статусу.
func (m *EngineMetrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// RecordTransitionDenied увеличивает счётчик отклонённых переходов.
func (m *EngineMetrics) RecordTransitionDenied() {
	m.transitionsDenied.Inc()
}

// RecordReservation увеличивает счётчик успешных резервов.
func (m *EngineMetrics) RecordReservation() {
	m.reservations.Inc()
}

// RecordRelease увеличивает счётчик снятий резерва.
func (m *EngineMetrics) RecordRelease() {
	m.releases.Inc()
}

// RecordInsufficientStock увеличивает счётчик отказов из-за нехватки остатка.
func (m *EngineMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordAdjustment увеличивает счётчик административных корректировок.
func (m *EngineMetrics) RecordAdjustment() {
	m.inventoryAdjustment.Inc()
}

// RecordReturnRequested увеличивает счётчик созданных запросов на возврат.
func (m *EngineMetrics) RecordReturnRequested() {
	m.returnsRequested.Inc()
}

// RecordReturnApproved увеличивает счётчик одобренных возвратов.
func (m *EngineMetrics) RecordReturnApproved() {
	m.returnsApproved.Inc()
}

// RecordReturnRejected увеличивает счётчик отклонённых возвратов.
func (m *EngineMetrics) RecordReturnRejected() {
	m.returnsRejected.Inc()
}

// RecordBulkStarted отмечает запуск bulk-операции.
func (m *EngineMetrics) RecordBulkStarted() {
	m.bulkStarted.Inc()
	m.activeBulkOps.Inc()
}

// RecordBulkFinished отмечает завершение bulk-операции.
func (m *EngineMetrics) RecordBulkFinished(failed bool, duration time.Duration) {
	m.activeBulkOps.Dec()
	m.bulkDuration.Observe(duration.Seconds())
	if failed {
		m.bulkFailed.Inc()
		return
	}
	m.bulkCompleted.Inc()
}

// RecordBulkItem отмечает результат обработки одной цели.
func (m *EngineMetrics) RecordBulkItem(result string) {
	m.bulkItems.WithLabelValues(result).Inc()
}

// RecordNotification отмечает исход доставки уведомления.
func (m *EngineMetrics) RecordNotification(failed bool) {
	if failed {
		m.notificationsFailed.Inc()
		return
	}
	m.notificationsSent.Inc()
}
