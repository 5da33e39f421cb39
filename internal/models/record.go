package models

import (
	"net/url"
	"strings"
	"time"
)

// PerformanceRecord is one row of the campaign performance table: a single
// recorded view of a keyword -> ad -> publisher -> landing page journey.
//
// Only keyword_term and the three volume metrics are guaranteed by the
// source export; every other column is optional and arrives as an empty
// string (or nil timestamp) when the export omits it. Callers must not
// assume optional columns are populated.
type PerformanceRecord struct {
	KeywordTerm      string `json:"keyword_term"`
	PublisherDomain  string `json:"publisher_domain,omitempty"`
	PublisherURL     string `json:"publisher_url,omitempty"`
	SerpTemplateID   string `json:"serp_template_id,omitempty"`
	SerpTemplateName string `json:"serp_template_name,omitempty"`
	AdID             string `json:"ad_id,omitempty"`
	AdTitle          string `json:"ad_title,omitempty"`
	AdDescription    string `json:"ad_description,omitempty"`
	DestinationURL   string `json:"destination_url,omitempty"`

	// Volume metrics, coerced to non-negative floats at ingestion.
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Conversions float64 `json:"conversions"`

	// Timestamp of the view. Nil when the export has no usable ts column;
	// rows without a timestamp sort as oldest.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SerpIdentifier returns the template name when present, falling back to
// the template id. Exports carry one or the other depending on vintage.
func (r *PerformanceRecord) SerpIdentifier() string {
	if r.SerpTemplateName != "" {
		return r.SerpTemplateName
	}
	return r.SerpTemplateID
}

// TimeOrZero returns the timestamp, or the zero time for rows without one.
func (r *PerformanceRecord) TimeOrZero() time.Time {
	if r.Timestamp == nil {
		return time.Time{}
	}
	return *r.Timestamp
}

// DomainFromURL extracts the host portion of a publisher URL. Returns ""
// for malformed or empty input rather than an error: a bad URL simply
// leaves the domain column empty.
func DomainFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
