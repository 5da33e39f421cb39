package flow

import (
	"strconv"
	"strings"

	"github.com/radiusdt/flowlens/internal/models"
)

// SafeFloat coerces an arbitrary value to a non-negative float64. Nil,
// unparsable, NaN-ish, or negative input yields def. It never panics:
// malformed metric cells in the source table become zeros, not errors.
func SafeFloat(v any, def float64) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return def
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
			return def
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if f != f || f < 0 {
		return def
	}
	return f
}

// Rate returns num/den, or 0 when den is not positive. All downstream
// comparisons rely on rates being finite, so a zero-denominator stage
// yields a zero rate rather than NaN or +Inf.
func Rate(num, den float64) float64 {
	if den > 0 {
		return num / den
	}
	return 0
}

// CTR is the click-through rate of a record.
func CTR(r *models.PerformanceRecord) float64 {
	return Rate(r.Clicks, r.Impressions)
}

// CVR is the conversion rate of a record.
func CVR(r *models.PerformanceRecord) float64 {
	return Rate(r.Conversions, r.Clicks)
}

// Metric identifies one of the three funnel volume metrics.
type Metric int

const (
	MetricConversions Metric = iota
	MetricClicks
	MetricImpressions
)

// metricPriority is the ranking cascade: strongest signal first. The
// selector walks this list and downgrades when a metric has no supported
// rows.
var metricPriority = []Metric{MetricConversions, MetricClicks, MetricImpressions}

func (m Metric) String() string {
	switch m {
	case MetricConversions:
		return "conversions"
	case MetricClicks:
		return "clicks"
	default:
		return "impressions"
	}
}

// Of returns the metric's value on a record.
func (m Metric) Of(r *models.PerformanceRecord) float64 {
	switch m {
	case MetricConversions:
		return r.Conversions
	case MetricClicks:
		return r.Clicks
	default:
		return r.Impressions
	}
}

// Supported reports whether a record may contribute to aggregation under
// this metric. A value without its funnel prerequisite (a conversion with
// no click, a click with no impression) is a data anomaly and is excluded.
func (m Metric) Supported(r *models.PerformanceRecord) bool {
	switch m {
	case MetricConversions:
		return r.Conversions > 0 && r.Clicks > 0
	case MetricClicks:
		return r.Clicks > 0 && r.Impressions > 0
	default:
		return r.Impressions > 0
	}
}
