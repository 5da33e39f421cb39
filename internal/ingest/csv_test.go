package ingest

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleCSV = `keyword_term,publisher_domain,publisher_url,serp_template_name,ad_id,impressions,clicks,conversions,ts
shoes,a.com,a.com/p1,T1,ad-1,100,10,1,2024-01-02 15:04:05
boots,b.com,b.com/p2,T2,ad-2,50,5,0,2024-01-03T10:00:00Z
`

func TestLoadPlainCSV(t *testing.T) {
	l := NewLoader(zap.NewNop())
	records, err := l.Load(strings.NewReader(sampleCSV))

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "shoes", records[0].KeywordTerm)
	assert.Equal(t, "a.com", records[0].PublisherDomain)
	assert.Equal(t, "T1", records[0].SerpTemplateName)
	assert.Equal(t, 100.0, records[0].Impressions)
	assert.Equal(t, 1.0, records[0].Conversions)
	require.NotNil(t, records[0].Timestamp)
	assert.Equal(t, 2024, records[0].Timestamp.Year())
	require.NotNil(t, records[1].Timestamp)
}

func TestLoadGzipCSV(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	l := NewLoader(zap.NewNop())
	records, err := l.Load(&buf)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "boots", records[1].KeywordTerm)
}

func TestLoadZipCSV(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("export.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	l := NewLoader(zap.NewNop())
	records, err := l.Load(&buf)

	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLoadZipWithoutCSV(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("nothing here"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	l := NewLoader(zap.NewNop())
	_, err = l.Load(&buf)
	assert.Error(t, err)
}

func TestLoadHeaderAliases(t *testing.T) {
	csvData := "keyword,creative_id,reporting_destination_url,impressions,clicks,conversions\n" +
		"shoes,ad-9,https://brand.example.com,10,1,0\n"

	l := NewLoader(zap.NewNop())
	records, err := l.Load(strings.NewReader(csvData))

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "shoes", records[0].KeywordTerm)
	assert.Equal(t, "ad-9", records[0].AdID)
	assert.Equal(t, "https://brand.example.com", records[0].DestinationURL)
}

func TestLoadCoercesMalformedMetrics(t *testing.T) {
	csvData := "keyword_term,impressions,clicks,conversions,ts\n" +
		"shoes,null,abc,-3,not-a-date\n"

	l := NewLoader(zap.NewNop())
	records, err := l.Load(strings.NewReader(csvData))

	require.NoError(t, err)
	require.Len(t, records, 1)
	// Malformed cells become zeros, not errors
	assert.Equal(t, 0.0, records[0].Impressions)
	assert.Equal(t, 0.0, records[0].Clicks)
	assert.Equal(t, 0.0, records[0].Conversions)
	assert.Nil(t, records[0].Timestamp)
}

func TestLoadRejectsEmptyAndHeaderless(t *testing.T) {
	l := NewLoader(zap.NewNop())

	_, err := l.Load(strings.NewReader(""))
	assert.Error(t, err)

	_, err = l.Load(strings.NewReader("foo,bar\n1,2\n"))
	assert.Error(t, err)
}
