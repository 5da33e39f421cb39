package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/metrics"
	"github.com/radiusdt/flowlens/internal/models"
)

// Pair names one of the scored relations in a flow.
type Pair string

const (
	KeywordToAd   Pair = "kwd_to_ad"
	AdToPage      Pair = "ad_to_page"
	KeywordToPage Pair = "kwd_to_page"
)

// Score is one relevance judgement. FinalScore is 0.0 to 1.0; the component
// scores are model-reported and may be zero when a prompt does not ask for
// them.
type Score struct {
	Pair         Pair    `json:"pair"`
	FinalScore   float64 `json:"final_score"`
	Reason       string  `json:"reason"`
	Band         string  `json:"band,omitempty"`
	Intent       string  `json:"intent,omitempty"`
	TopicMatch   float64 `json:"topic_match,omitempty"`
	BrandMatch   float64 `json:"brand_match,omitempty"`
	PromiseMatch float64 `json:"promise_match,omitempty"`
	UtilityMatch float64 `json:"utility_match,omitempty"`
	KeywordMatch float64 `json:"keyword_match,omitempty"`
	IntentMatch  float64 `json:"intent_match,omitempty"`
}

// Band buckets a final score for display.
func Band(score float64) string {
	switch {
	case score >= 0.8:
		return "excellent"
	case score >= 0.6:
		return "good"
	case score >= 0.4:
		return "moderate"
	case score >= 0.2:
		return "weak"
	default:
		return "poor"
	}
}

// Config holds the scoring backend settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client scores flow relevance through a chat-completions endpoint. The
// model is asked for a bare JSON object; anything around it is tolerated
// and stripped.
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClient creates a scoring client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// SetMetrics attaches the metrics registry.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// jsonObjectRe finds the first JSON object in the model's reply. Models
// wrap the object in prose or code fences often enough that strict
// unmarshalling of the whole reply is not viable.
var jsonObjectRe = regexp.MustCompile(`(?s)\{[^{}]+\}`)

// ScoreFlow runs every prompt that has its inputs available on the flow.
// KeywordToAd needs the keyword and ad text; the page-side pairs also need
// a landing page URL. Pairs with missing inputs are skipped, and one failed
// pair does not abort the rest.
func (c *Client) ScoreFlow(ctx context.Context, f *models.Flow) (map[Pair]Score, error) {
	keyword := f.KeywordTerm
	adText := strings.TrimSpace(f.AdTitle + " " + f.AdDescription)
	if keyword == "" || adText == "" {
		return nil, fmt.Errorf("flow is missing keyword or ad text")
	}

	out := make(map[Pair]Score, 3)

	s, err := c.scoreOne(ctx, KeywordToAd, keywordToAdPrompt(keyword, adText))
	if err != nil {
		c.logger.Warn("similarity scoring failed",
			zap.String("pair", string(KeywordToAd)), zap.Error(err))
	} else {
		out[KeywordToAd] = s
	}

	dest := strings.TrimSpace(f.DestinationURL)
	if dest == "" || strings.EqualFold(dest, "null") {
		return out, nil
	}
	pageText, err := c.fetchPageText(ctx, dest)
	if err != nil || pageText == "" {
		c.logger.Warn("landing page fetch failed",
			zap.String("url", dest), zap.Error(err))
		return out, nil
	}

	for pair, prompt := range map[Pair]string{
		AdToPage:      adToPagePrompt(adText, pageText),
		KeywordToPage: keywordToPagePrompt(keyword, pageText),
	} {
		s, err := c.scoreOne(ctx, pair, prompt)
		if err != nil {
			c.logger.Warn("similarity scoring failed",
				zap.String("pair", string(pair)), zap.Error(err))
			continue
		}
		out[pair] = s
	}
	return out, nil
}

func (c *Client) scoreOne(ctx context.Context, pair Pair, prompt string) (Score, error) {
	start := time.Now()
	s, err := c.chat(ctx, pair, prompt)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordSimilarityCall(string(pair), status, time.Since(start))
	}
	return s, err
}

func (c *Client) chat(ctx context.Context, pair Pair, prompt string) (Score, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return Score{}, fmt.Errorf("failed to encode scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Score{}, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Score{}, fmt.Errorf("failed to read scoring response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Score{}, fmt.Errorf("scoring backend returned %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Score{}, fmt.Errorf("failed to decode scoring response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Score{}, fmt.Errorf("scoring response has no choices")
	}

	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	obj := jsonObjectRe.FindString(content)
	if obj == "" {
		return Score{}, fmt.Errorf("no JSON object in scoring reply: %s", truncate(content, 200))
	}

	var s Score
	if err := json.Unmarshal([]byte(obj), &s); err != nil {
		return Score{}, fmt.Errorf("failed to decode score object: %w", err)
	}
	s.Pair = pair
	if s.Band == "" {
		s.Band = Band(s.FinalScore)
	}
	return s, nil
}

// fetchPageText pulls the landing page and strips it to plain text, capped
// to what the prompts can reasonably carry.
func (c *Client) fetchPageText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build page request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("page fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return truncate(stripHTML(string(raw)), 5000), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
