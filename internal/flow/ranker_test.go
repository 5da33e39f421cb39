package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/flowlens/internal/models"
)

func TestBestFlowsConversionsBeatClicks(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("boots", "b.com", "b.com/p", 10000, 1000, 0),
		rec("shoes", "a.com", "a.com/p", 100, 1, 1),
	}
	flows := BestFlows(records, 2, true)

	require.Len(t, flows, 2)
	// One conversion outranks a thousand clicks with none
	assert.Equal(t, "shoes", flows[0].KeywordTerm)
	assert.Equal(t, 1, flows[0].FlowRank)
	assert.Equal(t, "boots", flows[1].KeywordTerm)
	assert.Equal(t, 2, flows[1].FlowRank)
}

func TestBestFlowsDeduplicatesByKey(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("shoes", "a.com", "a.com/p", 100, 10, 5),
		rec("shoes", "a.com", "a.com/p", 100, 10, 3),
		rec("boots", "b.com", "b.com/p", 100, 10, 1),
	}
	flows := BestFlows(records, 5, true)

	require.Len(t, flows, 2)
	// Each key tuple appears once, represented by its strongest row
	assert.Equal(t, "shoes", flows[0].KeywordTerm)
	assert.Equal(t, 5.0, flows[0].Conversions)
	assert.Equal(t, "boots", flows[1].KeywordTerm)
}

func TestBestFlowsRanksAreSequential(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("a", "1.com", "1.com/p", 10, 5, 3),
		rec("b", "2.com", "2.com/p", 10, 5, 2),
		rec("c", "3.com", "3.com/p", 10, 5, 1),
	}
	flows := BestFlows(records, 3, true)

	require.Len(t, flows, 3)
	for i, f := range flows {
		assert.Equal(t, i+1, f.FlowRank)
	}
}

func TestBestFlowsConstantColumnsFallBackToRows(t *testing.T) {
	// Every discriminating column is constant: rank raw rows instead.
	records := []models.PerformanceRecord{
		rec("shoes", "a.com", "a.com/p", 100, 10, 1),
		rec("shoes", "a.com", "a.com/p", 100, 10, 7),
	}
	flows := BestFlows(records, 1, true)

	require.Len(t, flows, 1)
	assert.Equal(t, 7.0, flows[0].Conversions)
	assert.Equal(t, 1, flows[0].FlowRank)
}

func TestBestFlowsHonorsCountAndEmptyInput(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("a", "1.com", "1.com/p", 10, 5, 3),
		rec("b", "2.com", "2.com/p", 10, 5, 2),
	}
	assert.Len(t, BestFlows(records, 1, true), 1)
	assert.Nil(t, BestFlows(records, 0, true))
	assert.Nil(t, BestFlows(nil, 3, true))
}

func TestWorstFlowsRanksZeroConversionPopulation(t *testing.T) {
	lowCTR := rec("b", "b.com", "b.com/p", 100, 1, 0)
	lowCTR.Timestamp = tsDay(1)
	highCTR := rec("a", "a.com", "a.com/p", 100, 50, 0)
	highCTR.Timestamp = tsDay(2)
	converted := rec("c", "c.com", "c.com/p", 100, 10, 5)

	flows := WorstFlows([]models.PerformanceRecord{highCTR, lowCTR, converted}, 3, true)

	require.Len(t, flows, 2)
	// Lowest engagement first; converting flows never appear
	assert.Equal(t, "b", flows[0].KeywordTerm)
	assert.Equal(t, 1, flows[0].FlowRank)
	assert.Equal(t, "a", flows[1].KeywordTerm)
	assert.Equal(t, 2, flows[1].FlowRank)
}

func TestWorstFlowsEmptyWhenAllConvert(t *testing.T) {
	records := []models.PerformanceRecord{
		rec("a", "a.com", "a.com/p", 100, 10, 1),
		rec("b", "b.com", "b.com/p", 100, 10, 2),
	}
	flows := WorstFlows(records, 3, true)

	// All flows converted: there is no worst flow, not a "least good" one
	require.NotNil(t, flows)
	assert.Empty(t, flows)
}

func TestWorstFlowsDeduplicatesByKey(t *testing.T) {
	r1 := rec("a", "a.com", "a.com/p", 100, 2, 0)
	r1.Timestamp = tsDay(3)
	r2 := rec("a", "a.com", "a.com/p", 100, 2, 0)
	r2.Timestamp = tsDay(1)
	r3 := rec("b", "b.com", "b.com/p", 100, 40, 0)

	flows := WorstFlows([]models.PerformanceRecord{r1, r2, r3}, 5, true)

	require.Len(t, flows, 2)
	// Duplicate key collapses to its first-sorted row (the recent one)
	assert.Equal(t, "a", flows[0].KeywordTerm)
	require.NotNil(t, flows[0].Timestamp)
	assert.Equal(t, *tsDay(3), *flows[0].Timestamp)
}

func TestWorstFlowsEmptyInput(t *testing.T) {
	assert.Nil(t, WorstFlows(nil, 3, true))
	assert.Nil(t, WorstFlows([]models.PerformanceRecord{rec("a", "a.com", "", 1, 0, 0)}, 0, true))
}
