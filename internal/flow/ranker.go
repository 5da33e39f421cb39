package flow

import (
	"sort"

	"github.com/radiusdt/flowlens/internal/models"
)

// wideKey builds the fine-grained grouping for Top-N ranking: keyword,
// domain and URL, widened with the SERP column when the data carries one
// (or when the caller asks for template-level granularity), plus creative
// id and landing page URL when those columns exist. Constant columns are
// pruned before ranking; they cannot tell flows apart.
func wideKey(records []models.PerformanceRecord, includeSerp bool) GroupKey {
	cols := []Column{ColKeyword, ColDomain, ColURL}
	if ColumnPresent(records, ColSerpName) {
		cols = append(cols, ColSerpName)
	} else if includeSerp && ColumnPresent(records, ColSerpID) {
		cols = append(cols, ColSerpID)
	}
	if ColumnPresent(records, ColAdID) {
		cols = append(cols, ColAdID)
	}
	if ColumnPresent(records, ColDestination) {
		cols = append(cols, ColDestination)
	}
	return PruneConstantColumns(records, GroupKey{Cols: cols})
}

// rankFlows assigns 1-based ranks in emission order.
func rankFlows(rows []models.PerformanceRecord) []models.Flow {
	flows := make([]models.Flow, 0, len(rows))
	for i := range rows {
		flows = append(flows, models.Flow{PerformanceRecord: rows[i], FlowRank: i + 1})
	}
	return flows
}

// BestFlows ranks up to n distinct flows by performance, best first. A
// converting group always outranks a non-converting one regardless of raw
// click volume; each returned flow is the strongest concrete row of its
// wide-key group, and no two returned flows share a key tuple.
func BestFlows(records []models.PerformanceRecord, n int, includeSerp bool) []models.Flow {
	if n <= 0 || len(records) == 0 {
		return nil
	}
	rows := normalize(records)
	key := wideKey(rows, includeSerp)

	// All discriminating columns constant: no grouping is possible, rank
	// the raw rows directly.
	if key.Empty() {
		sortCandidates(rows, MetricConversions)
		if len(rows) > n {
			rows = rows[:n]
		}
		return rankFlows(rows)
	}

	groups := Aggregate(rows, key)
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Conversions != groups[j].Conversions {
			return groups[i].Conversions > groups[j].Conversions
		}
		if groups[i].Clicks != groups[j].Clicks {
			return groups[i].Clicks > groups[j].Clicks
		}
		return lessKey(groups[i].Values, groups[j].Values)
	})

	seen := make(map[string]bool, n)
	picked := make([]models.PerformanceRecord, 0, n)
	for gi := range groups {
		if len(picked) >= n {
			break
		}
		k := joinKey(groups[gi].Values)
		if seen[k] {
			continue
		}
		seen[k] = true

		members := make([]models.PerformanceRecord, 0, 4)
		for i := range rows {
			if key.Matches(&rows[i], groups[gi].Values) {
				members = append(members, rows[i])
			}
		}
		if len(members) == 0 {
			continue
		}
		sortCandidates(members, MetricConversions)
		picked = append(picked, members[0])
	}
	return rankFlows(picked)
}

// WorstFlows ranks up to n distinct flows from the zero-conversion
// population, lowest engagement first. Worst flows are only meaningful
// where nothing converted: when every row converted the result is empty,
// not the "least good" converting flow.
func WorstFlows(records []models.PerformanceRecord, n int, includeSerp bool) []models.Flow {
	if n <= 0 || len(records) == 0 {
		return nil
	}
	rows := normalize(records)
	key := wideKey(rows, includeSerp)

	zero := make([]models.PerformanceRecord, 0, len(rows))
	for i := range rows {
		if rows[i].Conversions == 0 {
			zero = append(zero, rows[i])
		}
	}
	if len(zero) == 0 {
		return []models.Flow{}
	}

	// CVR is zero across this population, so CTR carries the ordering;
	// most recent wins ties so the operator sees current traffic.
	sort.SliceStable(zero, func(i, j int) bool {
		a, b := &zero[i], &zero[j]
		if ca, cb := CVR(a), CVR(b); ca != cb {
			return ca < cb
		}
		if ca, cb := CTR(a), CTR(b); ca != cb {
			return ca < cb
		}
		return a.TimeOrZero().After(b.TimeOrZero())
	})

	if key.Empty() {
		if len(zero) > n {
			zero = zero[:n]
		}
		return rankFlows(zero)
	}

	seen := make(map[string]bool, n)
	picked := make([]models.PerformanceRecord, 0, n)
	for i := range zero {
		if len(picked) >= n {
			break
		}
		k := key.KeyOf(&zero[i])
		if seen[k] {
			continue
		}
		if zero[i].Conversions != 0 {
			continue
		}
		seen[k] = true
		picked = append(picked, zero[i])
	}
	return rankFlows(picked)
}

func joinKey(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += keySep
		}
		out += v
	}
	return out
}
