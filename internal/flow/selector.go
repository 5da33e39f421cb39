package flow

import (
	"sort"

	"github.com/radiusdt/flowlens/internal/models"
)

// normalize returns a copy of the input with publisher_domain derived from
// publisher_url where the export lacks a domain column. The input slice is
// never mutated; every session works on its own derived copy.
func normalize(records []models.PerformanceRecord) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].PublisherDomain == "" && out[i].PublisherURL != "" {
			out[i].PublisherDomain = models.DomainFromURL(out[i].PublisherURL)
		}
	}
	return out
}

// narrowKey builds the coarse grouping used for single best-flow selection:
// keyword + domain, widened by the SERP template column when the data has
// one. Template name is preferred over id, matching the export variants.
func narrowKey(records []models.PerformanceRecord) GroupKey {
	cols := []Column{ColKeyword, ColDomain}
	if ColumnPresent(records, ColSerpName) {
		cols = append(cols, ColSerpName)
	} else if ColumnPresent(records, ColSerpID) {
		cols = append(cols, ColSerpID)
	}
	return GroupKey{Cols: cols}
}

// filterSupported returns the rows that may contribute under the metric's
// funnel-prerequisite rule.
func filterSupported(records []models.PerformanceRecord, m Metric) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, 0, len(records))
	for i := range records {
		if m.Supported(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// rankingMetric picks the strongest metric with any volume at all:
// conversions when the table has any, else clicks, else impressions.
func rankingMetric(records []models.PerformanceRecord) Metric {
	var conv, clicks float64
	for i := range records {
		conv += records[i].Conversions
		clicks += records[i].Clicks
	}
	if conv > 0 {
		return MetricConversions
	}
	if clicks > 0 {
		return MetricClicks
	}
	return MetricImpressions
}

// sortCandidates applies the per-metric final tie-break ordering, most
// significant key first. Rows without a timestamp sort as oldest.
func sortCandidates(rows []models.PerformanceRecord, m Metric) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		switch m {
		case MetricConversions:
			if a.Conversions != b.Conversions {
				return a.Conversions > b.Conversions
			}
			if a.Clicks != b.Clicks {
				return a.Clicks > b.Clicks
			}
			return a.TimeOrZero().After(b.TimeOrZero())
		case MetricClicks:
			if a.Clicks != b.Clicks {
				return a.Clicks > b.Clicks
			}
			if a.Impressions != b.Impressions {
				return a.Impressions > b.Impressions
			}
			return a.TimeOrZero().After(b.TimeOrZero())
		default:
			if ta, tb := a.TimeOrZero(), b.TimeOrZero(); !ta.Equal(tb) {
				return ta.After(tb)
			}
			return a.Impressions > b.Impressions
		}
	})
}

// FindDefaultFlow picks the single best-performing flow to show by default.
//
// The ranking metric cascades conversions -> clicks -> impressions: the
// strongest metric with supported rows wins. Support means the funnel
// prerequisite holds, so a row claiming conversions without clicks can
// never be promoted no matter how large its conversion count. Within the
// winning narrow-key group, rows with a landing page URL are preferred,
// then the per-metric tie-break order decides.
//
// Returns nil when the table is empty. With rows but no supported metric
// at any level, the first row is returned as a last resort so the caller
// can still render something.
func FindDefaultFlow(records []models.PerformanceRecord) *models.Flow {
	if len(records) == 0 {
		return nil
	}
	rows := normalize(records)

	metric := rankingMetric(rows)
	start := 0
	for i, m := range metricPriority {
		if m == metric {
			start = i
			break
		}
	}

	// Downgrade the metric until some rows survive its validity filter.
	var valid []models.PerformanceRecord
	for _, m := range metricPriority[start:] {
		if valid = filterSupported(rows, m); len(valid) > 0 {
			metric = m
			break
		}
	}
	if len(valid) == 0 {
		f := models.NewFlow(rows[0])
		return f
	}

	key := narrowKey(rows)
	groups := Aggregate(valid, key)

	best := 0
	for i := 1; i < len(groups); i++ {
		gi, gb := groups[i].Metric(metric), groups[best].Metric(metric)
		if gi > gb || (gi == gb && lessKey(groups[i].Values, groups[best].Values)) {
			best = i
		}
	}
	winner := groups[best].Values

	// Re-filter to the winning combination and re-validate: the selector
	// must never emit a row violating the metric's prerequisite.
	candidates := make([]models.PerformanceRecord, 0, 8)
	for i := range valid {
		if key.Matches(&valid[i], winner) && metric.Supported(&valid[i]) {
			candidates = append(candidates, valid[i])
		}
	}
	if len(candidates) == 0 {
		f := models.NewFlow(rows[0])
		return f
	}

	// Prefer rows that have a landing page to show.
	withDest := make([]models.PerformanceRecord, 0, len(candidates))
	for i := range candidates {
		if candidates[i].DestinationURL != "" {
			withDest = append(withDest, candidates[i])
		}
	}
	if len(withDest) > 0 {
		candidates = withDest
	}

	sortCandidates(candidates, metric)
	return models.NewFlow(candidates[0])
}
