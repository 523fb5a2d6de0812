package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	registry *prometheus.Registry

	movements       *prometheus.CounterVec
	journalPostings *prometheus.CounterVec
	lotAllocations  prometheus.Counter
	allocShortfalls prometheus.Counter
}

// New builds the registry and domain instruments.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockbook_stock_movements_total",
			Help: "Stock movements appended to the ledger, by reason.",
		}, []string{"reason"}),
		journalPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockbook_journal_postings_total",
			Help: "Journal posting attempts, by source document kind and outcome.",
		}, []string{"source", "status"}),
		lotAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_lot_allocations_total",
			Help: "Lot decrements recorded with a traceability row.",
		}),
		allocShortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockbook_allocation_shortfalls_total",
			Help: "FEFO allocation plans that could not be fully satisfied.",
		}),
	}
	registry.MustRegister(m.movements, m.journalPostings, m.lotAllocations, m.allocShortfalls)
	return m
}

// Registry returns the prometheus registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordMovement(reason string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(strings.TrimSpace(reason)).Inc()
}

func (m *Metrics) RecordJournalPosting(source, status string) {
	if m == nil {
		return
	}
	m.journalPostings.WithLabelValues(strings.TrimSpace(source), strings.TrimSpace(status)).Inc()
}

func (m *Metrics) RecordLotAllocation() {
	if m == nil {
		return
	}
	m.lotAllocations.Inc()
}

func (m *Metrics) RecordAllocationShortfall() {
	if m == nil {
		return
	}
	m.allocShortfalls.Inc()
}
