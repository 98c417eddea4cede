// Package engine runs the fetch, diff and publish pipeline for a list of
// symbols.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chainflow/config"
	"chainflow/internal/analytics"
	"chainflow/internal/chain"
	"chainflow/internal/events"
	"chainflow/internal/metrics"
	"chainflow/internal/models"
	"chainflow/internal/prior"
	"chainflow/internal/schema"
	"chainflow/internal/source"
	"chainflow/internal/store"
	"chainflow/internal/writer"
	"chainflow/logger"
)

// Outcome of one symbol in a run.
type Outcome string

const (
	OutcomeWritten Outcome = "written"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SymbolReport describes what happened to one symbol and expiry.
type SymbolReport struct {
	Symbol      string
	Expiry      string
	Table       string
	Outcome     Outcome
	Rows        int
	Spot        float64
	Summary     analytics.Summary
	Diagnostics models.Diagnostics
	Err         error
	Duration    time.Duration
}

// RunReport collects the symbol reports of one run, in target order.
type RunReport struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Symbols  []SymbolReport
}

// Count returns how many symbols ended with outcome.
func (r RunReport) Count(outcome Outcome) int {
	n := 0
	for _, s := range r.Symbols {
		if s.Outcome == outcome {
			n++
		}
	}
	return n
}

// Observer receives one observation per processed symbol.
type Observer interface {
	ObserveSymbol(metrics.SymbolObservation)
}

type Engine struct {
	cfg    *config.Config
	source source.Source
	store  store.Store
	locker *store.Locker
	writer *writer.Writer
	layout schema.Layout

	observer  Observer
	publisher events.Publisher
	log       *logger.Log
}

// Option customizes an Engine.
type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPublisher announces every written table through p.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(log *logger.Log) Option {
	return func(e *Engine) { e.log = log }
}

func New(cfg *config.Config, src source.Source, st store.Store, opts ...Option) (*Engine, error) {
	if cfg == nil || src == nil || st == nil {
		return nil, errors.New("engine requires config, source and store")
	}
	layout, err := schema.ForMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		source: src,
		store:  st,
		locker: store.NewLocker(),
		layout: layout,
		log:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.writer = writer.New(st, cfg.Writer.Summary, e.log)
	return e, nil
}

// Target is one unit of work: a symbol fetched for one expiry and published
// to one table.
type Target struct {
	Symbol string
	Expiry string
	Table  string
	// Index is the position of Symbol in the configured list.
	Index int
}

// Targets expands symbols into units of work. In oi_delta mode every
// expiry mapping under tables.expiries is published to its own table;
// otherwise each symbol is published for the configured expiry to
// <prefix><SYMBOL>.
func (e *Engine) Targets(symbols []string) []Target {
	var out []Target
	for i, symbol := range symbols {
		if e.cfg.Mode == config.ModeOIDelta && len(e.cfg.Tables.Expiries) > 0 {
			for _, m := range e.cfg.Tables.Expiries {
				out = append(out, Target{Symbol: symbol, Expiry: m.Expiry, Table: m.Table, Index: i})
			}
			continue
		}
		out = append(out, Target{
			Symbol: symbol,
			Expiry: e.cfg.Expiry,
			Table:  e.cfg.Tables.Prefix + strings.ToUpper(symbol),
			Index:  i,
		})
	}
	return out
}

// Run processes every target of symbols. Targets are independent: no outcome
// aborts the run, and the report lists each target at its position in
// Targets(symbols).
func (e *Engine) Run(ctx context.Context, symbols []string) RunReport {
	targets := e.Targets(symbols)
	report := RunReport{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Symbols: make([]SymbolReport, len(targets)),
	}
	log := e.log.WithComponent("engine").WithFields(logger.Fields{"run_id": report.RunID})
	log.WithFields(logger.Fields{
		"symbols": len(symbols),
		"targets": len(targets),
		"mode":    e.cfg.Mode,
		"source":  e.source.Name(),
	}).Info("run started")

	workers := e.cfg.Reader.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				report.Symbols[i] = e.runTarget(ctx, log, report.RunID, targets[i])
			}
		}()
	}
	for i := range targets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report.Duration = time.Since(report.Started)
	log.WithFields(logger.Fields{
		"written":     report.Count(OutcomeWritten),
		"skipped":     report.Count(OutcomeSkipped),
		"failed":      report.Count(OutcomeFailed),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("run finished")
	return report
}

func (e *Engine) runTarget(ctx context.Context, runLog *logger.Entry, runID string, t Target) SymbolReport {
	start := time.Now()
	symbol := t.Symbol
	rep := SymbolReport{Symbol: symbol, Expiry: t.Expiry, Table: t.Table}
	log := runLog.WithFields(logger.Fields{"symbol": symbol, "expiry": t.Expiry, "table": rep.Table})

	tbl := e.process(ctx, log, t.Index, &rep)
	if rep.Outcome == OutcomeWritten && e.publisher != nil {
		ev := events.TableEvent{
			RunID:       runID,
			Symbol:      symbol,
			Table:       rep.Table,
			Layout:      e.layout.Name(),
			Expiry:      rep.Expiry,
			Spot:        rep.Spot,
			Header:      tbl.Header,
			Rows:        tbl.Rows,
			CallDiffSum: rep.Summary.CallDiffSum,
			PutDiffSum:  rep.Summary.PutDiffSum,
			PublishedAt: time.Now().UTC(),
		}
		if err := e.publisher.Publish(ctx, ev); err != nil {
			log.WithError(err).Warn("failed to publish table event")
		}
	}

	rep.Duration = time.Since(start)
	entry := log.WithFields(logger.Fields{
		"outcome":     rep.Outcome,
		"rows":        rep.Rows,
		"skipped":     len(rep.Diagnostics),
		"duration_ms": rep.Duration.Milliseconds(),
	})
	switch rep.Outcome {
	case OutcomeWritten:
		entry.WithFields(logger.Fields{
			"call_diff_sum": rep.Summary.CallDiffSum,
			"put_diff_sum":  rep.Summary.PutDiffSum,
		}).Info("symbol published")
	case OutcomeSkipped:
		entry.WithError(rep.Err).Warn("symbol skipped")
	default:
		entry.WithError(rep.Err).Error("symbol failed")
	}
	for _, d := range rep.Diagnostics {
		log.WithFields(logger.Fields{"stage": d.Stage, "key": d.Key, "reason": d.Reason}).Debug("item skipped")
	}

	if e.observer != nil {
		e.observer.ObserveSymbol(metrics.SymbolObservation{
			Symbol:      symbol,
			Outcome:     string(rep.Outcome),
			Rows:        rep.Rows,
			Skipped:     rep.Diagnostics.ByStage(),
			CallDiffSum: rep.Summary.CallDiffSum,
			PutDiffSum:  rep.Summary.PutDiffSum,
		})
	}
	return rep
}

func (e *Engine) process(ctx context.Context, log *logger.Entry, index int, rep *SymbolReport) schema.Table {
	snap, err := e.source.Fetch(ctx, source.Request{Symbol: rep.Symbol, Expiry: rep.Expiry})
	rep.Diagnostics.Merge(snap.Diagnostics)
	if err != nil {
		rep.Err = err
		rep.Outcome = OutcomeFailed
		if errors.Is(err, source.ErrNoData) {
			rep.Outcome = OutcomeSkipped
		}
		return schema.Table{}
	}

	c, diags := chain.Assemble(snap.Quotes)
	rep.Diagnostics.Merge(diags)
	if len(c) == 0 {
		rep.Err = fmt.Errorf("%s: %w", rep.Symbol, source.ErrNoData)
		rep.Outcome = OutcomeSkipped
		return schema.Table{}
	}

	// The prior read and the write must not interleave with another run on
	// the same table, or the next deltas are taken against a stale base.
	unlock := e.locker.Lock(rep.Table)
	defer unlock()

	rows, err := e.store.ReadAll(ctx, rep.Table)
	if err != nil && !errors.Is(err, store.ErrTableNotFound) {
		rep.Err = fmt.Errorf("read prior table: %w", err)
		rep.Outcome = OutcomeFailed
		return schema.Table{}
	}
	if errors.Is(err, store.ErrTableNotFound) {
		log.Info("table does not exist yet, starting from empty state")
	}
	state, diags := prior.Load(rows)
	rep.Diagnostics.Merge(diags)

	rep.Spot = e.resolveSpot(ctx, log, index, rep, snap.Spot)
	res := analytics.Compute(c, state, rep.Spot)
	tbl := e.layout.Render(res, schema.Meta{Expiry: rep.Expiry})

	if _, err := e.writer.Replace(ctx, rep.Table, tbl); err != nil {
		rep.Err = err
		rep.Outcome = OutcomeFailed
		return schema.Table{}
	}
	rep.Rows = len(tbl.Rows)
	rep.Summary = res.Summary
	rep.Outcome = OutcomeWritten
	logger.LogDataFlowEntry(log, e.source.Name(), rep.Table, rep.Rows, e.layout.Name())
	return tbl
}

// SpotTable names the companion table holding the spot price of the symbol
// at index in the configured list.
func SpotTable(index int, symbol string) string {
	return fmt.Sprintf("%d.%s", index+1, strings.ToUpper(symbol))
}

// resolveSpot prefers the payload spot, then the companion table cell. When
// neither yields a positive number the spot is zero and a warning is logged.
func (e *Engine) resolveSpot(ctx context.Context, log *logger.Entry, index int, rep *SymbolReport, payload float64) float64 {
	if payload > 0 {
		return payload
	}
	if e.cfg.Mode == config.ModeOIDelta {
		return 0
	}

	table := SpotTable(index, rep.Symbol)
	raw, err := e.store.ReadCell(ctx, table, e.cfg.Tables.SpotCell)
	if err == nil {
		var spot float64
		spot, err = parseSpot(raw)
		if err == nil && spot > 0 {
			return spot
		}
	}
	if err == nil {
		err = fmt.Errorf("spot cell %s!%s is empty", table, e.cfg.Tables.SpotCell)
	}
	rep.Diagnostics.Add(models.StageSpot, table, err)
	log.WithError(err).WithFields(logger.Fields{"spot_table": table}).Warn("spot unavailable, using 0")
	return 0
}

func parseSpot(raw string) (float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid spot %q: %w", raw, err)
	}
	f, _ := d.Float64()
	return f, nil
}
