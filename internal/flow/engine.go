package flow

import (
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/metrics"
	"github.com/radiusdt/flowlens/internal/models"
)

// Engine fronts the selection and ranking functions with logging, metrics
// and a panic guard. Selection math over a hostile table must never take
// the process down: a panic becomes an empty result and a diagnostic.
type Engine struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{logger: logger, metrics: m}
}

func (e *Engine) guard(op string) {
	if err := recover(); err != nil {
		e.logger.Error("flow computation panicked",
			zap.String("op", op),
			zap.Any("error", err),
		)
	}
}

// Default returns the single best flow, or nil.
func (e *Engine) Default(records []models.PerformanceRecord) (f *models.Flow) {
	defer e.guard("default")
	start := time.Now()
	f = FindDefaultFlow(records)
	if e.metrics != nil {
		metric := rankingMetric(records)
		if f == nil {
			e.metrics.RecordEmptySelection()
		} else if !metric.Supported(&f.PerformanceRecord) {
			// The cascade landed below the table's strongest metric.
			for _, m := range metricPriority {
				if m.Supported(&f.PerformanceRecord) {
					e.metrics.RecordDowngrade(metric.String(), m.String())
					break
				}
			}
		}
		e.metrics.RecordSelection(metric.String(), "default", time.Since(start))
	}
	return f
}

// Resolve runs one step of the selection state machine.
func (e *Engine) Resolve(records []models.PerformanceRecord, mode ViewMode, prev *models.Flow, filters Filters) (sel Selection) {
	defer e.guard("resolve")
	start := time.Now()
	sel = Resolve(records, mode, prev, filters)
	if e.metrics != nil {
		state := "default"
		if sel.State == StateFiltered {
			state = "filtered"
		}
		if sel.Flow == nil {
			e.metrics.RecordEmptySelection()
		}
		e.metrics.RecordSelection(rankingMetric(records).String(), state, time.Since(start))
	}
	return sel
}

// Best returns the top-n best flows.
func (e *Engine) Best(records []models.PerformanceRecord, n int, includeSerp bool) (flows []models.Flow) {
	defer e.guard("best")
	start := time.Now()
	flows = BestFlows(records, n, includeSerp)
	if e.metrics != nil {
		e.metrics.RecordRanking("best", time.Since(start))
	}
	return flows
}

// Worst returns the top-n worst flows.
func (e *Engine) Worst(records []models.PerformanceRecord, n int, includeSerp bool) (flows []models.Flow) {
	defer e.guard("worst")
	start := time.Now()
	flows = WorstFlows(records, n, includeSerp)
	if e.metrics != nil {
		e.metrics.RecordRanking("worst", time.Since(start))
	}
	return flows
}

// Overview builds the combinations table.
func (e *Engine) Overview(records []models.PerformanceRecord, mode OverviewMode, by OverviewSort, limit int) (ov Overview) {
	defer e.guard("overview")
	return BuildOverview(records, mode, by, limit)
}
