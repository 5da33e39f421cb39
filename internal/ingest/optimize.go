package ingest

import (
	"sort"

	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/flow"
	"github.com/radiusdt/flowlens/internal/models"
)

// DefaultKeepPerFlow is how many recent views survive per unique flow when
// no override is given.
const DefaultKeepPerFlow = 5

// Optimize shrinks a raw export to the rows that can influence selection:
// rows with zero clicks are dropped, then only the keep most recent views
// per unique flow (keyword, publisher URL, SERP template) are retained.
// Large raw exports are dominated by unclicked noise; this keeps the result
// orders of magnitude smaller without changing what gets selected.
func Optimize(records []models.PerformanceRecord, keep int, logger *zap.Logger) []models.PerformanceRecord {
	if keep <= 0 {
		keep = DefaultKeepPerFlow
	}

	clicked := make([]models.PerformanceRecord, 0, len(records))
	for i := range records {
		if records[i].Clicks > 0 {
			clicked = append(clicked, records[i])
		}
	}

	key := flow.GroupKey{Cols: []flow.Column{flow.ColKeyword, flow.ColURL, flow.ColSerpName}}
	byFlow := make(map[string][]models.PerformanceRecord)
	order := make([]string, 0, 64)
	for i := range clicked {
		k := key.KeyOf(&clicked[i])
		if _, ok := byFlow[k]; !ok {
			order = append(order, k)
		}
		byFlow[k] = append(byFlow[k], clicked[i])
	}

	out := make([]models.PerformanceRecord, 0, len(clicked))
	for _, k := range order {
		rows := byFlow[k]
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].TimeOrZero().After(rows[j].TimeOrZero())
		})
		if len(rows) > keep {
			rows = rows[:keep]
		}
		out = append(out, rows...)
	}

	if logger != nil {
		logger.Info("export optimized",
			zap.Int("rows_in", len(records)),
			zap.Int("rows_out", len(out)),
			zap.Int("flows", len(order)),
			zap.Int("keep_per_flow", keep),
		)
	}
	return out
}
