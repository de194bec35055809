package hedge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики оркестратора хеджей
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Счётчики саги ============

// OpensTotal - попытки открытия по исходам
var OpensTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "opens_total",
		Help:      "Total hedge open attempts by outcome",
	},
	[]string{"ticker", "outcome"}, // outcome: success, open_failed, validation_failed, manual, rejected
)

// ClosesTotal - попытки закрытия по исходам
var ClosesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "closes_total",
		Help:      "Total hedge close attempts by outcome and reason",
	},
	[]string{"reason", "outcome"}, // outcome: success, failed
)

// RollbacksTotal - компенсирующие закрытия после провала открытия
var RollbacksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "rollbacks_total",
		Help:      "Total compensating closes after a failed open",
	},
)

// ManualInterventionsTotal - отказы, требующие ручной сверки
var ManualInterventionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "manual_interventions_total",
		Help:      "Total failures escalated to manual reconciliation",
	},
)

// SweepErrorsTotal - ошибки вызовов бирж внутри свипов мониторинга
var SweepErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fundingbot",
		Subsystem: "monitor",
		Name:      "sweep_errors_total",
		Help:      "Venue call failures inside monitoring sweeps",
	},
	[]string{"sweep"}, // funding_time, smart_tick, funding_calc, pnl_check, liquidation
)

// RealizedPnlTotal - суммарный реализованный P&L в USD.
// Gauge, а не Counter: реализованный P&L бывает отрицательным.
var RealizedPnlTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "realized_pnl_total_usd",
		Help:      "Total realized PnL in USD",
	},
)

// ============ Латентность ног ============

// LegLatency - время исполнения одной ноги на бирже
var LegLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "leg_latency_ms",
		Help:      "Time to execute a single leg on a venue in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 10000, 20000},
	},
	[]string{"venue", "op"}, // op: open, close
)

// ============ Состояние ============

// OpenPositions - текущее количество отслеживаемых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "fundingbot",
		Subsystem: "hedge",
		Name:      "open_positions",
		Help:      "Current number of tracked hedge positions",
	},
)

// SpreadObserved - наблюдаемые спреды фандинга, bps
var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fundingbot",
		Subsystem: "signal",
		Name:      "spread_observed_bps",
		Help:      "Observed funding spread values in basis points",
		Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 50, 100, 200},
	},
	[]string{"ticker"},
)

// ============ Вспомогательные функции ============

// recordOpen записывает исход попытки открытия
func recordOpen(ticker, outcome string) {
	OpensTotal.WithLabelValues(ticker, outcome).Inc()
}

// recordClose записывает исход попытки закрытия
func recordClose(reason string, success bool, profit float64) {
	outcome := "failed"
	if success {
		outcome = "success"
		RealizedPnlTotal.Add(profit)
	}
	ClosesTotal.WithLabelValues(reason, outcome).Inc()
}

// recordSweepError записывает ошибку свипа
func recordSweepError(sweep string) {
	SweepErrorsTotal.WithLabelValues(sweep).Inc()
}
