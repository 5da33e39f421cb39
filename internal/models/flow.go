package models

// Flow is the selected representative of one flow candidate: the single
// underlying PerformanceRecord chosen to stand for a keyword/publisher/
// creative/landing-page combination, plus its position when part of a
// ranked list.
type Flow struct {
	PerformanceRecord

	// FlowRank is 1-based within a ranked list, 0 for a standalone
	// default-flow selection.
	FlowRank int `json:"flow_rank,omitempty"`
}

// NewFlow wraps a record as an unranked flow.
func NewFlow(r PerformanceRecord) *Flow {
	return &Flow{PerformanceRecord: r}
}

// Patch merges a newly selected record onto the flow, keeping prior values
// for columns the new record does not carry. Volume metrics and the
// timestamp always come from the new record; string columns are only
// overwritten when the new record has them. This is the "patch, don't
// replace" merge used when a filter change re-resolves part of a flow.
func (f *Flow) Patch(r PerformanceRecord) {
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&f.KeywordTerm, r.KeywordTerm)
	setIf(&f.PublisherDomain, r.PublisherDomain)
	setIf(&f.PublisherURL, r.PublisherURL)
	setIf(&f.SerpTemplateID, r.SerpTemplateID)
	setIf(&f.SerpTemplateName, r.SerpTemplateName)
	setIf(&f.AdID, r.AdID)
	setIf(&f.AdTitle, r.AdTitle)
	setIf(&f.AdDescription, r.AdDescription)
	setIf(&f.DestinationURL, r.DestinationURL)

	f.Impressions = r.Impressions
	f.Clicks = r.Clicks
	f.Conversions = r.Conversions
	if r.Timestamp != nil {
		f.Timestamp = r.Timestamp
	}
}
