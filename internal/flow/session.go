package flow

import (
	"sort"

	"github.com/radiusdt/flowlens/internal/models"
)

// ViewMode selects between the guided default view and the filterable one.
type ViewMode string

const (
	ModeBasic    ViewMode = "basic"
	ModeAdvanced ViewMode = "advanced"
)

// FilterAll is the sentinel meaning "no constraint" for a filter value.
const FilterAll = "All"

// Filters holds the user-pinnable constraints in advanced mode.
type Filters struct {
	Keyword string `json:"keyword"`
	Domain  string `json:"domain"`
}

// normalizeFilters treats empty values as "All".
func (f Filters) normalized() Filters {
	if f.Keyword == "" {
		f.Keyword = FilterAll
	}
	if f.Domain == "" {
		f.Domain = FilterAll
	}
	return f
}

// changed reports whether any filter pins a value differing from the
// currently active flow. "All" never counts as a change.
func (f Filters) changed(prev *models.Flow) bool {
	if prev == nil {
		// No active flow yet: any pinned value differs from nothing.
		return f.Keyword != FilterAll || f.Domain != FilterAll
	}
	if f.Keyword != FilterAll && f.Keyword != prev.KeywordTerm {
		return true
	}
	if f.Domain != FilterAll && f.Domain != prev.PublisherDomain {
		return true
	}
	return false
}

// State enumerates the two selection paths.
type State int

const (
	// StateDefault means the active flow is the computed best flow.
	StateDefault State = iota
	// StateFiltered means the active flow was re-derived from pinned filters.
	StateFiltered
)

// Selection is the outcome of one resolution step.
type Selection struct {
	State State
	Flow  *models.Flow
}

// Resolve is the pure transition function of the selection state machine:
// given the full record set, the view mode, the previously active flow and
// the current filters, it recomputes the active flow. There is no hidden
// session state; switching basic -> advanced is expressed by the caller
// passing all-"All" filters, which lands on the default path.
func Resolve(records []models.PerformanceRecord, mode ViewMode, prev *models.Flow, filters Filters) Selection {
	filters = filters.normalized()

	if mode == ModeBasic || !filters.changed(prev) {
		return Selection{State: StateDefault, Flow: resolveDefault(records)}
	}
	return Selection{State: StateFiltered, Flow: resolveFiltered(records, prev, filters)}
}

// resolveDefault runs the best-flow selector, then locates the strongest
// concrete row of the winning combination so the presentation layer gets a
// real view rather than the aggregate winner.
func resolveDefault(records []models.PerformanceRecord) *models.Flow {
	f := FindDefaultFlow(records)
	if f == nil {
		return nil
	}
	rows := normalize(records)

	serpScoped := ColumnPresent(rows, ColSerpName)
	subset := make([]models.PerformanceRecord, 0, 8)
	for i := range rows {
		r := &rows[i]
		if r.KeywordTerm != f.KeywordTerm || r.PublisherDomain != f.PublisherDomain {
			continue
		}
		if serpScoped && r.SerpTemplateName != f.SerpTemplateName {
			continue
		}
		subset = append(subset, rows[i])
	}
	if len(subset) == 0 {
		return f
	}

	// Prefer converted views, then clicked, then seen.
	subset = preferPositive(subset)
	f.Patch(bestView(subset))
	return f
}

// preferPositive narrows to the strongest non-empty funnel stage:
// conversions > 0, else clicks > 0, else impressions > 0, else all rows.
func preferPositive(rows []models.PerformanceRecord) []models.PerformanceRecord {
	for _, m := range metricPriority {
		matched := make([]models.PerformanceRecord, 0, len(rows))
		for i := range rows {
			if m.Of(&rows[i]) > 0 {
				matched = append(matched, rows[i])
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return rows
}

// bestView picks the most recent row, falling back to the highest
// conversions/clicks/impressions when no row has a timestamp.
func bestView(rows []models.PerformanceRecord) models.PerformanceRecord {
	hasTS := false
	for i := range rows {
		if rows[i].Timestamp != nil {
			hasTS = true
			break
		}
	}
	if hasTS {
		best := 0
		for i := 1; i < len(rows); i++ {
			if rows[i].TimeOrZero().After(rows[best].TimeOrZero()) {
				best = i
			}
		}
		return rows[best]
	}
	sorted := make([]models.PerformanceRecord, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if a.Conversions != b.Conversions {
			return a.Conversions > b.Conversions
		}
		if a.Clicks != b.Clicks {
			return a.Clicks > b.Clicks
		}
		return a.Impressions > b.Impressions
	})
	return sorted[0]
}

// resolveFiltered narrows the table stepwise by the pinned keyword, then
// domain, then the first publisher URL available in that subset, auto-picks
// the best SERP template inside the narrowed set, and carries the resolved
// identity fields forward onto the previous flow.
func resolveFiltered(records []models.PerformanceRecord, prev *models.Flow, filters Filters) *models.Flow {
	rows := normalize(records)
	if len(rows) == 0 {
		return prev
	}

	out := &models.Flow{}
	if prev != nil {
		*out = *prev
	}

	kw := filters.Keyword
	if kw == FilterAll {
		kw = out.KeywordTerm
		if kw == "" {
			if kws := distinctSorted(rows, ColKeyword); len(kws) > 0 {
				kw = kws[0]
			}
		}
	}
	subset := filterBy(rows, ColKeyword, kw)

	dom := filters.Domain
	if dom == FilterAll {
		dom = out.PublisherDomain
		if dom == "" {
			if doms := distinctSorted(subset, ColDomain); len(doms) > 0 {
				dom = doms[0]
			}
		}
	}
	if dom != "" {
		subset = filterBy(subset, ColDomain, dom)
	}

	// URLs keep first-appearance order; sorting would tear apart variants
	// of the same page.
	urls := distinct(subset, ColURL)
	pubURL := out.PublisherURL
	if pubURL == "" && len(urls) > 0 {
		pubURL = urls[0]
	}
	if len(urls) > 0 && pubURL != "" {
		if narrowed := filterBy(subset, ColURL, pubURL); len(narrowed) > 0 {
			subset = narrowed
		}
	}

	serp := pickSerp(subset)
	if serp != "" {
		out.SerpTemplateName = serp
		if narrowed := filterBy(subset, ColSerpName, serp); len(narrowed) > 0 {
			subset = narrowed
		}
	}

	if len(subset) > 0 {
		out.Patch(bestView(subset))
	}

	// The resolved identity always wins over whatever the picked row says.
	if kw != "" {
		out.KeywordTerm = kw
	}
	if dom != "" {
		out.PublisherDomain = dom
	}
	if pubURL != "" {
		out.PublisherURL = pubURL
	}
	return out
}

// pickSerp aggregates the narrowed subset per SERP template and returns the
// one with the most conversions, else clicks, else impressions. Ties go to
// the lexicographically first template for reproducibility.
func pickSerp(rows []models.PerformanceRecord) string {
	if !ColumnPresent(rows, ColSerpName) {
		return ""
	}
	groups := Aggregate(rows, GroupKey{Cols: []Column{ColSerpName}})
	if len(groups) == 0 {
		return ""
	}

	var totals AggregatedGroup
	for i := range groups {
		totals.Conversions += groups[i].Conversions
		totals.Clicks += groups[i].Clicks
		totals.Impressions += groups[i].Impressions
	}
	metric := MetricImpressions
	if totals.Conversions > 0 {
		metric = MetricConversions
	} else if totals.Clicks > 0 {
		metric = MetricClicks
	}

	best := 0
	for i := 1; i < len(groups); i++ {
		gi, gb := groups[i].Metric(metric), groups[best].Metric(metric)
		if gi > gb || (gi == gb && lessKey(groups[i].Values, groups[best].Values)) {
			best = i
		}
	}
	return groups[best].Values[0]
}

func filterBy(rows []models.PerformanceRecord, c Column, v string) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, 0, len(rows))
	for i := range rows {
		if c.Value(&rows[i]) == v {
			out = append(out, rows[i])
		}
	}
	return out
}

// distinct returns non-empty column values in first-appearance order.
func distinct(rows []models.PerformanceRecord, c Column) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, 8)
	for i := range rows {
		v := c.Value(&rows[i])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func distinctSorted(rows []models.PerformanceRecord, c Column) []string {
	out := distinct(rows, c)
	sort.Strings(out)
	return out
}
