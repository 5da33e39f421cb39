package similarity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/models"
)

func scoringBackend(t *testing.T, content string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestScoreFlowKeywordToAd(t *testing.T) {
	var calls int
	content := "Here is my assessment:\n" +
		`{"intent":"TRANSACTIONAL","keyword_match":0.7,"topic_match":0.8,"intent_match":0.9,"final_score":0.84,"reason":"strong match"}` +
		"\nHope that helps."
	srv := scoringBackend(t, content, &calls)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, zap.NewNop())
	f := models.NewFlow(models.PerformanceRecord{
		KeywordTerm: "running shoes",
		AdTitle:     "Buy Running Shoes",
	})

	scores, err := c.ScoreFlow(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 1, calls)

	s := scores[KeywordToAd]
	assert.Equal(t, KeywordToAd, s.Pair)
	assert.InDelta(t, 0.84, s.FinalScore, 0.001)
	assert.Equal(t, "strong match", s.Reason)
	// Band derived when the model omits it
	assert.Equal(t, "excellent", s.Band)
}

func TestScoreFlowMissingInputs(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused", APIKey: "k"}, zap.NewNop())

	_, err := c.ScoreFlow(context.Background(), models.NewFlow(models.PerformanceRecord{}))
	assert.Error(t, err)

	_, err = c.ScoreFlow(context.Background(), models.NewFlow(models.PerformanceRecord{KeywordTerm: "shoes"}))
	assert.Error(t, err)
}

func TestScoreFlowBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	f := models.NewFlow(models.PerformanceRecord{KeywordTerm: "shoes", AdTitle: "Shoes"})

	scores, err := c.ScoreFlow(context.Background(), f)
	// The failed pair is skipped, not fatal
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestBand(t *testing.T) {
	assert.Equal(t, "excellent", Band(0.9))
	assert.Equal(t, "good", Band(0.6))
	assert.Equal(t, "moderate", Band(0.5))
	assert.Equal(t, "weak", Band(0.2))
	assert.Equal(t, "poor", Band(0.1))
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>.x{color:red}</style><script>alert(1)</script></head>` +
		`<body><h1>Running  Shoes</h1><p>Free shipping</p></body></html>`
	assert.Equal(t, "Running Shoes Free shipping", stripHTML(html))
}
