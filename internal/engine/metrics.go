package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики матчинг-движка
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для алертов (EngineHalts > 0 - немедленный алерт)

// CommandLatency - время обработки команды движком (от dequeue до ответа)
var CommandLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "exchange",
		Subsystem: "engine",
		Name:      "command_latency_ms",
		Help:      "Time to process an engine command in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"market", "command"}, // command: new_order, cancel
)

// OrdersTotal - количество обработанных ордеров по результатам
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "engine",
		Name:      "orders_total",
		Help:      "Total number of processed orders",
	},
	[]string{"market", "result"}, // result: filled, open, partially_filled, cancelled, rejected
)

// TradesTotal - количество сделок
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "engine",
		Name:      "trades_total",
		Help:      "Total number of trades",
	},
	[]string{"market"},
)

// CommandQueueSize - текущая глубина очереди команд рынка
var CommandQueueSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "exchange",
		Subsystem: "engine",
		Name:      "command_queue_size",
		Help:      "Current number of commands waiting in the market queue",
	},
	[]string{"market"},
)

// RestingOrders - количество отдыхающих ордеров в стакане
var RestingOrders = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "exchange",
		Subsystem: "engine",
		Name:      "resting_orders",
		Help:      "Current number of resting orders in the book",
	},
	[]string{"market"},
)

// EngineHalts - остановки рынков по нарушению инварианта.
// Любое ненулевое значение требует вмешательства оператора.
var EngineHalts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "engine",
		Name:      "halts_total",
		Help:      "Total number of engine halts due to invariant violations",
	},
	[]string{"market"},
)
