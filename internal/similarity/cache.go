package similarity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/metrics"
	"github.com/radiusdt/flowlens/internal/models"
)

// Cache fronts the scoring client with Redis. Scores are deterministic
// enough to cache aggressively: the key is the pair plus a hash of the
// flow's text inputs, so any change to keyword, creative or landing page
// produces a fresh entry.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCache creates a score cache.
func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// SetMetrics attaches the metrics registry.
func (c *Cache) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func cacheKey(pair Pair, f *models.Flow) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		f.KeywordTerm, f.AdTitle, f.AdDescription, f.DestinationURL,
	}, "\x1f")))
	return fmt.Sprintf("flowlens:sim:%s:%s", pair, hex.EncodeToString(h[:16]))
}

// Get returns the cached score for the pair, or ok=false on a miss. Redis
// errors count as misses; the cache must never make scoring worse.
func (c *Cache) Get(ctx context.Context, pair Pair, f *models.Flow) (Score, bool) {
	s, ok := c.get(ctx, pair, f)
	if c.metrics != nil {
		c.metrics.RecordSimilarityCache(ok)
	}
	return s, ok
}

func (c *Cache) get(ctx context.Context, pair Pair, f *models.Flow) (Score, bool) {
	raw, err := c.client.Get(ctx, cacheKey(pair, f)).Bytes()
	if err == redis.Nil {
		return Score{}, false
	}
	if err != nil {
		c.logger.Warn("similarity cache read failed", zap.Error(err))
		return Score{}, false
	}
	var s Score
	if err := json.Unmarshal(raw, &s); err != nil {
		return Score{}, false
	}
	return s, true
}

// Put stores a score.
func (c *Cache) Put(ctx context.Context, f *models.Flow, s Score) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(s.Pair, f), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("similarity cache write failed", zap.Error(err))
	}
}

// Scorer scores flows; satisfied by *Client.
type Scorer interface {
	ScoreFlow(ctx context.Context, f *models.Flow) (map[Pair]Score, error)
}

// CachedScorer wraps a Scorer with the cache. All three pairs must hit for
// the backend call to be skipped; a partial hit still re-scores everything
// so the pairs stay mutually consistent.
type CachedScorer struct {
	inner Scorer
	cache *Cache
}

// NewCachedScorer wraps a scorer.
func NewCachedScorer(inner Scorer, cache *Cache) *CachedScorer {
	return &CachedScorer{inner: inner, cache: cache}
}

// ScoreFlow returns cached scores when every applicable pair is present,
// otherwise scores through the backend and refreshes the cache.
func (s *CachedScorer) ScoreFlow(ctx context.Context, f *models.Flow) (map[Pair]Score, error) {
	pairs := []Pair{KeywordToAd}
	if strings.TrimSpace(f.DestinationURL) != "" {
		pairs = append(pairs, AdToPage, KeywordToPage)
	}

	cached := make(map[Pair]Score, len(pairs))
	for _, p := range pairs {
		sc, ok := s.cache.Get(ctx, p, f)
		if !ok {
			cached = nil
			break
		}
		cached[p] = sc
	}
	if cached != nil {
		return cached, nil
	}

	scores, err := s.inner.ScoreFlow(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, sc := range scores {
		s.cache.Put(ctx, f, sc)
	}
	return scores, nil
}
