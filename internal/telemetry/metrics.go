package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора. Регистрируются в глобальном registry
// и отдаются promhttp.Handler() на /metrics.
var (
	// TasksSubmitted — принятые в очередь tasks.
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_tasks_submitted_total",
		Help: "Tasks admitted into the queue",
	})

	// TasksRejected — отклонённые заявки (очередь полна, невалидные опции).
	TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocap_tasks_rejected_total",
		Help: "Submissions rejected before admission",
	}, []string{"reason"})

	// TasksFinished — tasks, дошедшие до терминального состояния.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocap_tasks_finished_total",
		Help: "Tasks that reached a terminal state",
	}, []string{"state", "kind"})

	// QueueDepth — текущая длина очереди допуска.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mocap_queue_depth",
		Help: "Tasks waiting in the admission queue",
	})

	// SlotBusy — 1, если GPU слот занят.
	SlotBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mocap_gpu_slot_busy",
		Help: "1 while a task holds the exclusive GPU slot",
	})

	// StepDuration — длительность шагов pipeline.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mocap_step_duration_seconds",
		Help:    "Pipeline step duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1200},
	}, []string{"step", "outcome"})

	// CleanupRemoved — удалённые каталоги task по причине.
	CleanupRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocap_cleanup_removed_total",
		Help: "Task artifact directories removed by cleanup",
	}, []string{"trigger"})

	// HTTPRequestDuration — длительность HTTP запросов API по маршруту.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mocap_http_request_duration_seconds",
		Help:    "API request duration by route pattern and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// IntakeMessages — заявки из mocap.submissions по результату обработки.
	IntakeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mocap_intake_messages_total",
		Help: "Broker submissions by handling result",
	}, []string{"result"})

	// BrokerReconnects — переподключения к RabbitMQ.
	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mocap_broker_reconnects_total",
		Help: "Successful reconnects to the message broker",
	})
)
