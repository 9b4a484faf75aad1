package server

import (
	"log/slog"

	"creditpool/core/events"
	"creditpool/core/types"
	"creditpool/observability/metrics"
)

// LedgerEmitter bridges engine events into structured logs and the
// Prometheus registry.
type LedgerEmitter struct {
	log     *slog.Logger
	metrics *metrics.CreditMetrics
}

// NewLedgerEmitter wires the event sink. A nil logger falls back to the
// process default.
func NewLedgerEmitter(log *slog.Logger, m *metrics.CreditMetrics) *LedgerEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LedgerEmitter{log: log, metrics: m}
}

// Emit implements the events.Emitter contract.
func (l *LedgerEmitter) Emit(ev events.Event) {
	if l == nil || ev == nil {
		return
	}
	switch payload := ev.(type) {
	case events.DrawExecuted:
		l.metrics.ObserveDraw(payload.Sourced, payload.AllSatisfied)
	case events.DebtRepaid:
		l.metrics.ObserveRepayment("repay", payload.Paid)
	case events.DebtRecovered:
		l.metrics.ObserveRepayment("recovery", payload.Paid)
	case events.DebtDefaulted:
		l.metrics.ObserveDefault()
	case events.AccumulatorsRefreshed:
		l.metrics.SetLastAccrual(payload.Timestamp)
	}

	broadcast, ok := ev.(interface{ Event() *types.Event })
	if !ok {
		l.log.Info(ev.EventType())
		return
	}
	record := broadcast.Event()
	args := make([]any, 0, 2*len(record.Attributes))
	for key, value := range record.Attributes {
		args = append(args, slog.String(key, value))
	}
	l.log.Info(record.Type, args...)
}
