package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"chainflow/internal/engine"
)

// ring keeps the most recent items up to limit. It is safe for concurrent use.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 50
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

func (r *ring[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

type symbolStatus struct {
	Symbol      string         `json:"symbol"`
	Expiry      string         `json:"expiry"`
	Table       string         `json:"table"`
	Outcome     string         `json:"outcome"`
	Rows        int            `json:"rows"`
	Spot        float64        `json:"spot"`
	CallDiffSum float64        `json:"call_diff_sum"`
	PutDiffSum  float64        `json:"put_diff_sum"`
	Skipped     map[string]int `json:"skipped,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
}

// runStatus is the serialisable form of an engine.RunReport.
type runStatus struct {
	RunID      string         `json:"run_id"`
	Started    time.Time      `json:"started"`
	DurationMs int64          `json:"duration_ms"`
	Written    int            `json:"written"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Symbols    []symbolStatus `json:"symbols"`
}

func newRunStatus(r engine.RunReport) runStatus {
	st := runStatus{
		RunID:      r.RunID,
		Started:    r.Started,
		DurationMs: r.Duration.Milliseconds(),
		Written:    r.Count(engine.OutcomeWritten),
		Skipped:    r.Count(engine.OutcomeSkipped),
		Failed:     r.Count(engine.OutcomeFailed),
		Symbols:    make([]symbolStatus, 0, len(r.Symbols)),
	}
	for _, s := range r.Symbols {
		ss := symbolStatus{
			Symbol:      s.Symbol,
			Expiry:      s.Expiry,
			Table:       s.Table,
			Outcome:     string(s.Outcome),
			Rows:        s.Rows,
			Spot:        s.Spot,
			CallDiffSum: s.Summary.CallDiffSum,
			PutDiffSum:  s.Summary.PutDiffSum,
			Skipped:     s.Diagnostics.ByStage(),
			DurationMs:  s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			ss.Error = s.Err.Error()
		}
		st.Symbols = append(st.Symbols, ss)
	}
	return st
}

// logRecord is a captured log entry.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook retaining the most recent entries.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{ring: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}
			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}
	s.add(record)
	return nil
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
