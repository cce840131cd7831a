package service

import (
	"errors"
	"time"

	"clicker_ledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LedgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by name and result",
		},
		[]string{"op", "result"},
	)
	LedgerOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Ledger operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	CoinsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_coins_total",
			Help: "Coins credited or debited by transaction kind",
		},
		[]string{"kind", "direction"},
	)
)

func init() {
	prometheus.MustRegister(LedgerOps)
	prometheus.MustRegister(LedgerOpDuration)
	prometheus.MustRegister(CoinsMoved)
}

// observe records the outcome of one operation started at start.
func observe(op string, start time.Time, err error) {
	LedgerOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	LedgerOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return "duplicate"
	case domain.IsValidation(err):
		return "invalid"
	case domain.IsBusinessRule(err):
		return "rejected"
	case domain.IsRetryable(err):
		return "retryable"
	default:
		return "error"
	}
}

func countCoins(kind domain.TransactionKind, amount int64) {
	dir := "credit"
	if amount < 0 {
		dir = "debit"
		amount = -amount
	}
	CoinsMoved.WithLabelValues(string(kind), dir).Add(float64(amount))
}
