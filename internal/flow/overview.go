package flow

import (
	"sort"

	"github.com/radiusdt/flowlens/internal/models"
)

// OverviewMode orders the combinations table.
type OverviewMode string

const (
	OverviewBest    OverviewMode = "best"
	OverviewWorst   OverviewMode = "worst"
	OverviewOverall OverviewMode = "overall"
)

// OverviewSort names the column the table is ordered by.
type OverviewSort string

const (
	SortImpressions OverviewSort = "impressions"
	SortClicks      OverviewSort = "clicks"
	SortConversions OverviewSort = "conversions"
	SortCTR         OverviewSort = "ctr"
	SortCVR         OverviewSort = "cvr"
)

// OverviewRow is one domain+keyword combination with its summed volume and
// derived rates. Rates are percentages here, matching how the table is read.
type OverviewRow struct {
	PublisherDomain string  `json:"publisher_domain"`
	KeywordTerm     string  `json:"keyword_term"`
	Impressions     float64 `json:"impressions"`
	Clicks          float64 `json:"clicks"`
	Conversions     float64 `json:"conversions"`
	CTRPercent      float64 `json:"ctr_percent"`
	CVRPercent      float64 `json:"cvr_percent"`
}

// Overview is the combinations table plus the weighted-average rates used
// as its good/bad baseline. The averages are volume-weighted over the whole
// table, not means of per-row rates.
type Overview struct {
	Rows           []OverviewRow `json:"rows"`
	WeightedCTRPct float64       `json:"weighted_ctr_percent"`
	WeightedCVRPct float64       `json:"weighted_cvr_percent"`
}

func (r *OverviewRow) sortValue(by OverviewSort) float64 {
	switch by {
	case SortClicks:
		return r.Clicks
	case SortConversions:
		return r.Conversions
	case SortCTR:
		return r.CTRPercent
	case SortCVR:
		return r.CVRPercent
	default:
		return r.Impressions
	}
}

// BuildOverview aggregates records by publisher domain and keyword and
// returns up to limit rows ordered per mode. "worst" sorts ascending;
// "best" and "overall" descending. limit <= 0 keeps all rows.
func BuildOverview(records []models.PerformanceRecord, mode OverviewMode, by OverviewSort, limit int) Overview {
	rows := normalize(records)
	groups := Aggregate(rows, GroupKey{Cols: []Column{ColDomain, ColKeyword}})

	ov := Overview{Rows: make([]OverviewRow, 0, len(groups))}
	var totalImps, totalClicks, totalConvs float64
	for i := range groups {
		g := &groups[i]
		ov.Rows = append(ov.Rows, OverviewRow{
			PublisherDomain: g.Values[0],
			KeywordTerm:     g.Values[1],
			Impressions:     g.Impressions,
			Clicks:          g.Clicks,
			Conversions:     g.Conversions,
			CTRPercent:      g.CTR() * 100,
			CVRPercent:      g.CVR() * 100,
		})
		totalImps += g.Impressions
		totalClicks += g.Clicks
		totalConvs += g.Conversions
	}
	ov.WeightedCTRPct = Rate(totalClicks, totalImps) * 100
	ov.WeightedCVRPct = Rate(totalConvs, totalClicks) * 100

	asc := mode == OverviewWorst
	sort.SliceStable(ov.Rows, func(i, j int) bool {
		vi, vj := ov.Rows[i].sortValue(by), ov.Rows[j].sortValue(by)
		if vi != vj {
			if asc {
				return vi < vj
			}
			return vi > vj
		}
		if ov.Rows[i].PublisherDomain != ov.Rows[j].PublisherDomain {
			return ov.Rows[i].PublisherDomain < ov.Rows[j].PublisherDomain
		}
		return ov.Rows[i].KeywordTerm < ov.Rows[j].KeywordTerm
	})

	if limit > 0 && len(ov.Rows) > limit {
		ov.Rows = ov.Rows[:limit]
	}
	return ov
}
