package ingest

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/flow"
	"github.com/radiusdt/flowlens/internal/metrics"
	"github.com/radiusdt/flowlens/internal/models"
)

// Loader reads performance table exports. Exports arrive as plain CSV,
// gzip-compressed CSV, or a ZIP archive containing one CSV; the container
// is detected from magic bytes, never from file names.
type Loader struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewLoader creates a Loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// SetMetrics attaches the metrics registry.
func (l *Loader) SetMetrics(m *metrics.Metrics) {
	l.metrics = m
}

// columnAliases maps export header variants to canonical column names.
// Different export vintages name the same column differently.
var columnAliases = map[string]string{
	"keyword_term":              "keyword_term",
	"keyword":                   "keyword_term",
	"publisher_domain":          "publisher_domain",
	"publisher_url":             "publisher_url",
	"serp_template_id":          "serp_template_id",
	"serp_template_name":        "serp_template_name",
	"ad_id":                     "ad_id",
	"creative_id":               "ad_id",
	"ad_title":                  "ad_title",
	"creative_title":            "ad_title",
	"ad_description":            "ad_description",
	"creative_description":      "ad_description",
	"destination_url":           "destination_url",
	"reporting_destination_url": "destination_url",
	"impressions":               "impressions",
	"clicks":                    "clicks",
	"conversions":               "conversions",
	"ts":                        "ts",
	"timestamp":                 "ts",
}

// tsLayouts are tried in order when parsing the timestamp column.
var tsLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Load reads a complete export from r, detecting and unwrapping the
// container, and returns the parsed records. Malformed rows are skipped
// and counted, not fatal: a single bad line must never lose an export.
func (l *Loader) Load(r io.Reader) ([]models.PerformanceRecord, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("export is empty")
	}

	switch {
	case len(content) >= 2 && content[0] == 0x1f && content[1] == 0x8b:
		gz, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip export: %w", err)
		}
		defer gz.Close()
		return l.parseCSV(gz, "gzip")

	case len(content) >= 2 && content[0] == 'P' && content[1] == 'K':
		zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return nil, fmt.Errorf("failed to open zip export: %w", err)
		}
		for _, f := range zr.File {
			if !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open %s in zip export: %w", f.Name, err)
			}
			defer rc.Close()
			return l.parseCSV(rc, "zip")
		}
		return nil, fmt.Errorf("zip export contains no CSV file")

	default:
		return l.parseCSV(bytes.NewReader(content), "csv")
	}
}

func (l *Loader) parseCSV(r io.Reader, container string) ([]models.PerformanceRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}

	// Column index by canonical name. Unknown columns are carried past.
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := columnAliases[name]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	if _, ok := cols["keyword_term"]; !ok {
		return nil, fmt.Errorf("export has no keyword_term column")
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]models.PerformanceRecord, 0, 1024)
	var skipped int
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		rec := models.PerformanceRecord{
			KeywordTerm:      cell(row, "keyword_term"),
			PublisherDomain:  cell(row, "publisher_domain"),
			PublisherURL:     cell(row, "publisher_url"),
			SerpTemplateID:   cell(row, "serp_template_id"),
			SerpTemplateName: cell(row, "serp_template_name"),
			AdID:             cell(row, "ad_id"),
			AdTitle:          cell(row, "ad_title"),
			AdDescription:    cell(row, "ad_description"),
			DestinationURL:   cell(row, "destination_url"),
			Impressions:      flow.SafeFloat(cell(row, "impressions"), 0),
			Clicks:           flow.SafeFloat(cell(row, "clicks"), 0),
			Conversions:      flow.SafeFloat(cell(row, "conversions"), 0),
			Timestamp:        parseTimestamp(cell(row, "ts")),
		}
		records = append(records, rec)
	}

	if l.metrics != nil {
		l.metrics.RecordExport(container, len(records), skipped)
	}
	l.logger.Info("export parsed",
		zap.String("container", container),
		zap.Int("rows", len(records)),
		zap.Int("skipped", skipped),
		zap.Int("columns", len(cols)),
	)
	return records, nil
}

// parseTimestamp tries the known layouts plus a unix-seconds fallback.
// Unparsable timestamps become nil, which sorts as oldest downstream.
func parseTimestamp(s string) *time.Time {
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	if secs := flow.SafeFloat(s, -1); secs > 0 {
		t := time.Unix(int64(secs), 0).UTC()
		return &t
	}
	return nil
}
