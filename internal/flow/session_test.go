package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiusdt/flowlens/internal/models"
)

func serpRec(kw, dom, url, serp string, imps, clicks, convs float64, day int) models.PerformanceRecord {
	r := rec(kw, dom, url, imps, clicks, convs)
	r.SerpTemplateName = serp
	r.Timestamp = tsDay(day)
	return r
}

func TestResolveBasicModeUsesDefaultFlow(t *testing.T) {
	withDest := serpRec("shoes", "a.com", "a.com/p", "T1", 100, 5, 2, 1)
	withDest.DestinationURL = "https://brand.example.com"
	fresher := serpRec("shoes", "a.com", "a.com/p", "T1", 50, 3, 1, 5)
	records := []models.PerformanceRecord{withDest, fresher}

	sel := Resolve(records, ModeBasic, nil, Filters{})

	assert.Equal(t, StateDefault, sel.State)
	require.NotNil(t, sel.Flow)
	assert.Equal(t, "shoes", sel.Flow.KeywordTerm)
	// The most recent view of the winning combination is shown, with
	// columns it lacks carried over from the selection.
	assert.Equal(t, 1.0, sel.Flow.Conversions)
	require.NotNil(t, sel.Flow.Timestamp)
	assert.Equal(t, *tsDay(5), *sel.Flow.Timestamp)
	assert.Equal(t, "https://brand.example.com", sel.Flow.DestinationURL)
}

func TestResolveBasicModeIgnoresFilters(t *testing.T) {
	records := []models.PerformanceRecord{
		serpRec("shoes", "a.com", "a.com/p", "T1", 100, 5, 2, 1),
		serpRec("boots", "b.com", "b.com/p", "T1", 100, 5, 1, 1),
	}
	prev := models.NewFlow(records[0])

	sel := Resolve(records, ModeBasic, prev, Filters{Keyword: "boots"})

	assert.Equal(t, StateDefault, sel.State)
	require.NotNil(t, sel.Flow)
	assert.Equal(t, "shoes", sel.Flow.KeywordTerm)
}

func TestResolveBasicModeScopesToWinningSerp(t *testing.T) {
	records := []models.PerformanceRecord{
		serpRec("shoes", "a.com", "a.com/p", "T1", 100, 10, 5, 1),
		// Fresher view of a weaker template must not be patched in
		serpRec("shoes", "a.com", "a.com/p", "T2", 100, 4, 1, 9),
	}

	sel := Resolve(records, ModeBasic, nil, Filters{})

	require.NotNil(t, sel.Flow)
	assert.Equal(t, "T1", sel.Flow.SerpTemplateName)
	assert.Equal(t, 5.0, sel.Flow.Conversions)
	require.NotNil(t, sel.Flow.Timestamp)
	assert.Equal(t, *tsDay(1), *sel.Flow.Timestamp)
}

func TestResolveAdvancedPinnedFilterWithoutPriorFlow(t *testing.T) {
	records := []models.PerformanceRecord{
		serpRec("shoes", "a.com", "a.com/p", "T1", 100, 5, 2, 1),
		serpRec("boots", "b.com", "b.com/p", "T1", 100, 5, 1, 1),
	}

	// A pinned value with no active flow is a change from nothing
	sel := Resolve(records, ModeAdvanced, nil, Filters{Keyword: "boots"})
	assert.Equal(t, StateFiltered, sel.State)
	require.NotNil(t, sel.Flow)
	assert.Equal(t, "boots", sel.Flow.KeywordTerm)
	assert.Equal(t, "b.com", sel.Flow.PublisherDomain)

	// All-"All" filters with no active flow stay on the default path
	sel = Resolve(records, ModeAdvanced, nil, Filters{})
	assert.Equal(t, StateDefault, sel.State)
}

func TestResolveAdvancedUnchangedFiltersStayOnDefault(t *testing.T) {
	records := []models.PerformanceRecord{
		serpRec("shoes", "a.com", "a.com/p", "T1", 100, 5, 2, 1),
	}
	prev := models.NewFlow(records[0])

	// "All" pins nothing, so nothing changed
	sel := Resolve(records, ModeAdvanced, prev, Filters{Keyword: FilterAll, Domain: FilterAll})
	assert.Equal(t, StateDefault, sel.State)

	// Empty filters normalize to "All"
	sel = Resolve(records, ModeAdvanced, prev, Filters{})
	assert.Equal(t, StateDefault, sel.State)

	// Re-pinning the already active values is not a change either
	sel = Resolve(records, ModeAdvanced, prev, Filters{Keyword: "shoes", Domain: "a.com"})
	assert.Equal(t, StateDefault, sel.State)
}

func TestResolveAdvancedFilterChangeNarrowsAndPatches(t *testing.T) {
	records := []models.PerformanceRecord{
		serpRec("shoes", "a.com", "a.com/x", "T1", 100, 5, 2, 1),
		serpRec("boots", "a.com", "a.com/u1", "S1", 10, 2, 0, 1),
		serpRec("boots", "a.com", "a.com/u1", "S2", 20, 4, 3, 2),
	}
	prev := models.NewFlow(records[0])
	prev.PublisherURL = ""

	sel := Resolve(records, ModeAdvanced, prev, Filters{Keyword: "boots"})

	assert.Equal(t, StateFiltered, sel.State)
	require.NotNil(t, sel.Flow)
	assert.Equal(t, "boots", sel.Flow.KeywordTerm)
	// Domain carried from the previous flow, URL narrowed to the first
	// available one, SERP auto-picked by conversions.
	assert.Equal(t, "a.com", sel.Flow.PublisherDomain)
	assert.Equal(t, "a.com/u1", sel.Flow.PublisherURL)
	assert.Equal(t, "S2", sel.Flow.SerpTemplateName)
	assert.Equal(t, 3.0, sel.Flow.Conversions)
	require.NotNil(t, sel.Flow.Timestamp)
	assert.Equal(t, *tsDay(2), *sel.Flow.Timestamp)
}

func TestResolveAdvancedSerpAutoPickFallsBackToClicks(t *testing.T) {
	records := []models.PerformanceRecord{
		serpRec("shoes", "a.com", "a.com/x", "T1", 100, 5, 1, 1),
		serpRec("boots", "a.com", "a.com/u1", "S1", 100, 9, 0, 1),
		serpRec("boots", "a.com", "a.com/u1", "S2", 100, 2, 0, 2),
	}
	prev := models.NewFlow(records[0])
	prev.PublisherURL = ""

	sel := Resolve(records, ModeAdvanced, prev, Filters{Keyword: "boots"})

	require.NotNil(t, sel.Flow)
	// No conversions in the narrowed set: clicks decide the SERP
	assert.Equal(t, "S1", sel.Flow.SerpTemplateName)
}

func TestResolveEmptyTable(t *testing.T) {
	sel := Resolve(nil, ModeBasic, nil, Filters{})
	assert.Equal(t, StateDefault, sel.State)
	assert.Nil(t, sel.Flow)

	prev := models.NewFlow(rec("shoes", "a.com", "", 1, 1, 1))
	sel = Resolve(nil, ModeAdvanced, prev, Filters{Keyword: "boots"})
	assert.Equal(t, StateFiltered, sel.State)
	// Nothing to narrow: the previous flow survives untouched
	assert.Equal(t, prev, sel.Flow)
}
