package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/flowlens/internal/models"
)

// tsDay returns a timestamp on the given day of January 2024.
func tsDay(day int) *time.Time {
	t := time.Date(2024, time.January, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func rec(kw, dom, url string, imps, clicks, convs float64) models.PerformanceRecord {
	return models.PerformanceRecord{
		KeywordTerm:     kw,
		PublisherDomain: dom,
		PublisherURL:    url,
		Impressions:     imps,
		Clicks:          clicks,
		Conversions:     convs,
	}
}

func TestAggregateSumsPerGroup(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("shoes", "a.com", "", 100, 10, 1),
		rec("shoes", "a.com", "", 50, 5, 2),
		rec("boots", "b.com", "", 30, 3, 0),
	}
	key := GroupKey{Cols: []Column{ColKeyword, ColDomain}}
	groups := Aggregate(records, key)

	require.Len(t, groups, 2)
	// First-seen order
	assert.Equal(t, []string{"shoes", "a.com"}, groups[0].Values)
	assert.Equal(t, 150.0, groups[0].Impressions)
	assert.Equal(t, 15.0, groups[0].Clicks)
	assert.Equal(t, 3.0, groups[0].Conversions)
	assert.Equal(t, []string{"boots", "b.com"}, groups[1].Values)
}

func TestAggregateGroupsEmptyKeys(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("", "", "", 10, 1, 0),
		rec("", "", "", 20, 2, 0),
	}
	groups := Aggregate(records, GroupKey{Cols: []Column{ColKeyword}})

	// Null-keyed rows group together instead of being dropped
	require.Len(t, groups, 1)
	assert.Equal(t, 30.0, groups[0].Impressions)
}

func TestAggregatedGroupRates(t *testing.T) {
	g := AggregatedGroup{Impressions: 200, Clicks: 10, Conversions: 2}
	assert.Equal(t, 0.05, g.CTR())
	assert.Equal(t, 0.2, g.CVR())
	assert.Equal(t, 2.0, g.Metric(MetricConversions))

	zero := AggregatedGroup{}
	assert.Equal(t, 0.0, zero.CTR())
	assert.Equal(t, 0.0, zero.CVR())
}

func TestPruneConstantColumns(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("shoes", "a.com", "a.com/p1", 1, 0, 0),
		rec("boots", "a.com", "a.com/p2", 1, 0, 0),
	}
	key := GroupKey{Cols: []Column{ColKeyword, ColDomain, ColURL}}
	pruned := PruneConstantColumns(records, key)

	// Domain never varies, so it cannot discriminate
	assert.Equal(t, []Column{ColKeyword, ColURL}, pruned.Cols)
}

func TestPruneConstantColumnsAllConstant(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("shoes", "a.com", "", 1, 0, 0),
		rec("shoes", "a.com", "", 2, 0, 0),
	}
	pruned := PruneConstantColumns(records, GroupKey{Cols: []Column{ColKeyword, ColDomain}})
	assert.True(t, pruned.Empty())
}

func TestColumnPresent(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("shoes", "", "", 1, 0, 0),
		{KeywordTerm: "boots", SerpTemplateName: "T1"},
	}
	assert.True(t, ColumnPresent(records, ColSerpName))
	assert.False(t, ColumnPresent(records, ColSerpID))
	assert.False(t, ColumnPresent(records, ColDomain))
}

func TestGroupKeyMatches(t *testing.T) {
	r := rec("shoes", "a.com", "", 1, 0, 0)
	key := GroupKey{Cols: []Column{ColKeyword, ColDomain}}
	assert.True(t, key.Matches(&r, []string{"shoes", "a.com"}))
	assert.False(t, key.Matches(&r, []string{"shoes", "b.com"}))
}

func TestLessKey(t *testing.T) {
	assert.True(t, lessKey([]string{"a", "x"}, []string{"b", "a"}))
	assert.False(t, lessKey([]string{"b"}, []string{"a"}))
	assert.True(t, lessKey([]string{"a"}, []string{"a", "b"}))
	assert.False(t, lessKey([]string{"a", "b"}, []string{"a", "b"}))
}
