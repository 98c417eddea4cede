// Registers:
//
//	#chainflow_symbol_runs_total{symbol,outcome}
//	#chainflow_rows_written
//	#chainflow_skipped_items_total{stage}
//	#chainflow_diff_sum{symbol,side}
//	#go_* and process_* system metrics
//
// Exposes them on the configured address under /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chainflow/logger"
)

const component = "engine"

// SymbolObservation is the outcome of one symbol in one run.
type SymbolObservation struct {
	Symbol      string
	Outcome     string
	Rows        int
	Skipped     map[string]int
	CallDiffSum float64
	PutDiffSum  float64
}

// Recorder owns the Prometheus collectors of a process.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	rows     prometheus.Counter
	skipped  *prometheus.CounterVec
	diffSum  *prometheus.GaugeVec
	log      *logger.Log
}

func NewRecorder(log *logger.Log) *Recorder {
	if log == nil {
		log = logger.GetLogger()
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainflow_symbol_runs_total",
				Help: "Symbol runs by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainflow_rows_written",
			Help: "Data rows published across all tables",
		}),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainflow_skipped_items_total",
				Help: "Items dropped by skip-and-continue, by stage",
			},
			[]string{"stage"},
		),
		diffSum: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainflow_diff_sum",
				Help: "Last published LTP - VWAP sum per side",
			},
			[]string{"symbol", "side"},
		),
		log: log,
	}
	r.registry.MustRegister(r.runs, r.rows, r.skipped, r.diffSum)
	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveSymbol updates the collectors and emits the same values as metric
// events for log output and registered handlers.
func (r *Recorder) ObserveSymbol(o SymbolObservation) {
	r.runs.WithLabelValues(o.Symbol, o.Outcome).Inc()
	r.rows.Add(float64(o.Rows))
	for stage, n := range o.Skipped {
		r.skipped.WithLabelValues(stage).Add(float64(n))
	}
	if o.Outcome == "written" {
		r.diffSum.WithLabelValues(o.Symbol, "call").Set(o.CallDiffSum)
		r.diffSum.WithLabelValues(o.Symbol, "put").Set(o.PutDiffSum)
	}

	fields := logger.Fields{"symbol": o.Symbol, "outcome": o.Outcome}
	EmitMetric(r.log, component, "symbol_runs", 1, "counter", fields)
	EmitMetric(r.log, component, "rows_written", o.Rows, "counter", logger.Fields{"symbol": o.Symbol})
	for stage, n := range o.Skipped {
		EmitMetric(r.log, component, "skipped_items", n, "counter", logger.Fields{"symbol": o.Symbol, "stage": stage})
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
