// Package metrics expone la instrumentación Prometheus del agente.
//
// Métricas principales:
//   - agente_scans_total                  – ciclos de scan ejecutados
//   - agente_opportunities_found          – candidatos del último scan (gauge)
//   - agente_positions_opened_total       – posiciones abiertas
//   - agente_exits_total{reason}          – cierres por motivo (won|lost|stopped|partial|advisor)
//   - agente_capital_total_usd            – capital total (gauge)
//   - agente_capital_available_usd        – capital disponible (gauge)
//   - agente_open_positions               – posiciones abiertas (gauge)
//   - agente_advisor_calls_total{result}  – llamadas al oráculo (ok|error|no_opinion)
//   - agente_price_source_total{source}   – refrescos de precio por fuente (clob|gamma)
//
// Se registran en init() y se sirven en /metrics por el server HTTP.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Scans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agente_scans_total",
		Help: "Scan cycles executed",
	})

	OpportunitiesFound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agente_opportunities_found",
		Help: "Opportunities found in the last scan cycle",
	})

	PositionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agente_positions_opened_total",
		Help: "Positions opened",
	})

	Exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agente_exits_total",
		Help: "Position exits split by reason",
	}, []string{"reason"})

	CapitalTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agente_capital_total_usd",
		Help: "Total capital in USD",
	})

	CapitalAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agente_capital_available_usd",
		Help: "Unallocated capital in USD",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agente_open_positions",
		Help: "Open position count",
	})

	AdvisorCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agente_advisor_calls_total",
		Help: "Advisory oracle calls by result",
	}, []string{"result"})

	PriceSource = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agente_price_source_total",
		Help: "Price refreshes by data source",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(Scans, OpportunitiesFound, PositionsOpened, Exits)
	prometheus.MustRegister(CapitalTotal, CapitalAvailable, OpenPositions)
	prometheus.MustRegister(AdvisorCalls, PriceSource)
}
