package flow

import (
	"strings"

	"github.com/radiusdt/flowlens/internal/models"
)

// Column names a groupable attribute of a PerformanceRecord.
type Column string

const (
	ColKeyword     Column = "keyword_term"
	ColDomain      Column = "publisher_domain"
	ColURL         Column = "publisher_url"
	ColSerpID      Column = "serp_template_id"
	ColSerpName    Column = "serp_template_name"
	ColAdID        Column = "ad_id"
	ColDestination Column = "destination_url"
)

// keySep joins key parts; unit separator never occurs in real column values.
const keySep = "\x1f"

// Value returns the column's value on a record. Missing optional columns
// read as "", which groups all such rows together rather than dropping them.
func (c Column) Value(r *models.PerformanceRecord) string {
	switch c {
	case ColKeyword:
		return r.KeywordTerm
	case ColDomain:
		return r.PublisherDomain
	case ColURL:
		return r.PublisherURL
	case ColSerpID:
		return r.SerpTemplateID
	case ColSerpName:
		return r.SerpTemplateName
	case ColAdID:
		return r.AdID
	case ColDestination:
		return r.DestinationURL
	default:
		return ""
	}
}

// GroupKey is an ordered tuple of columns partitioning records into flow
// candidates.
type GroupKey struct {
	Cols []Column
}

// KeyOf renders the record's key tuple as a single comparable string.
func (k GroupKey) KeyOf(r *models.PerformanceRecord) string {
	parts := make([]string, len(k.Cols))
	for i, c := range k.Cols {
		parts[i] = c.Value(r)
	}
	return strings.Join(parts, keySep)
}

// Empty reports whether the key has no discriminating columns left.
func (k GroupKey) Empty() bool { return len(k.Cols) == 0 }

// Matches reports whether a record carries exactly the given key values.
func (k GroupKey) Matches(r *models.PerformanceRecord, values []string) bool {
	for i, c := range k.Cols {
		if c.Value(r) != values[i] {
			return false
		}
	}
	return true
}

// ColumnPresent reports whether any record has a non-empty value for the
// column. Optional columns absent from the export read as empty everywhere
// and must not widen the grouping key.
func ColumnPresent(records []models.PerformanceRecord, c Column) bool {
	for i := range records {
		if c.Value(&records[i]) != "" {
			return true
		}
	}
	return false
}

// PruneConstantColumns drops key columns whose value never varies across
// the input. A constant column cannot discriminate between flows; keeping
// it only inflates the key. This is an optimization, not an error path.
func PruneConstantColumns(records []models.PerformanceRecord, k GroupKey) GroupKey {
	if len(records) == 0 {
		return k
	}
	kept := make([]Column, 0, len(k.Cols))
	for _, c := range k.Cols {
		first := c.Value(&records[0])
		for i := 1; i < len(records); i++ {
			if c.Value(&records[i]) != first {
				kept = append(kept, c)
				break
			}
		}
	}
	return GroupKey{Cols: kept}
}

// AggregatedGroup is one key tuple with its summed volume metrics. Rates
// are derived from the sums on demand; summing rates directly would invite
// Simpson's-paradox errors.
type AggregatedGroup struct {
	Values      []string
	Impressions float64
	Clicks      float64
	Conversions float64
}

// CTR is the group's click-through rate.
func (g *AggregatedGroup) CTR() float64 { return Rate(g.Clicks, g.Impressions) }

// CVR is the group's conversion rate.
func (g *AggregatedGroup) CVR() float64 { return Rate(g.Conversions, g.Clicks) }

// Metric returns the summed value for the given metric.
func (g *AggregatedGroup) Metric(m Metric) float64 {
	switch m {
	case MetricConversions:
		return g.Conversions
	case MetricClicks:
		return g.Clicks
	default:
		return g.Impressions
	}
}

// Aggregate partitions records by exact equality on the key columns and
// sums the three volume metrics per group. Rows whose key columns are all
// empty still form a group; null-keyed data is grouped, never dropped.
// Groups come back in first-seen order, which is stable and reproducible
// for a given input ordering.
func Aggregate(records []models.PerformanceRecord, key GroupKey) []AggregatedGroup {
	index := make(map[string]int, len(records))
	groups := make([]AggregatedGroup, 0, 16)

	for i := range records {
		r := &records[i]
		k := key.KeyOf(r)
		gi, ok := index[k]
		if !ok {
			values := make([]string, len(key.Cols))
			for j, c := range key.Cols {
				values[j] = c.Value(r)
			}
			groups = append(groups, AggregatedGroup{Values: values})
			gi = len(groups) - 1
			index[k] = gi
		}
		groups[gi].Impressions += r.Impressions
		groups[gi].Clicks += r.Clicks
		groups[gi].Conversions += r.Conversions
	}
	return groups
}

// lessKey orders two key tuples lexicographically. Used as the documented
// deterministic tie-break when summed metrics are exactly equal.
func lessKey(a, b []string) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
