package sentiment

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

func TestScoreHeadlineBullish(t *testing.T) {
	score, conf := ScoreHeadline("Nifty surges to record high on strong earnings rally")
	if score <= 0 {
		t.Errorf("score = %v, want positive", score)
	}
	if conf <= 0.1 {
		t.Errorf("confidence = %v, want above no-signal floor", conf)
	}
}

func TestScoreHeadlineBearish(t *testing.T) {
	score, _ := ScoreHeadline("Markets crash as selloff deepens, Nifty plunges on weak cues")
	if score >= 0 {
		t.Errorf("score = %v, want negative", score)
	}
}

func TestScoreHeadlineNoSignal(t *testing.T) {
	score, conf := ScoreHeadline("NSE revises lot sizes for derivatives contracts")
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
	if conf != 0.1 {
		t.Errorf("confidence = %v, want 0.1", conf)
	}
}

func TestAggregateScoresDecay(t *testing.T) {
	now := time.Now()
	// One fresh bullish and one hour-old bearish article with equal
	// confidence: the fresh one dominates after three half-lives.
	scores := []ScoredArticle{
		{Article: models.NewsArticle{PublishedAt: now}, Score: 1, Confidence: 0.8},
		{Article: models.NewsArticle{PublishedAt: now.Add(-time.Hour)}, Score: -1, Confidence: 0.8},
	}
	score, _ := AggregateScores(scores, now)
	if score <= 50 {
		t.Errorf("score = %v, want bullish (>50)", score)
	}
	// weights 1 vs 2^-3: net = (1-0.125)/1.125 ≈ 0.778 → ≈ 88.9.
	want := 50 + (1-0.125)/(1+0.125)*50
	if math.Abs(score-want) > 0.01 {
		t.Errorf("score = %v, want %v", score, want)
	}
}

func TestAggregateScoresEmpty(t *testing.T) {
	score, conf := AggregateScores(nil, time.Now())
	if score != 50 || conf != 0 {
		t.Errorf("got (%v, %v), want neutral (50, 0)", score, conf)
	}
}

// stubProvider returns fixed articles.
type stubProvider struct {
	name     string
	kind     string
	articles []models.NewsArticle
	err      error
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Kind() string { return s.kind }
func (s *stubProvider) Fetch(context.Context) ([]models.NewsArticle, error) {
	return s.articles, s.err
}

// stubMomentum returns a fixed z-score.
type stubMomentum struct {
	z   float64
	err error
}

func (s *stubMomentum) MomentumOn(int) (float64, error) { return s.z, s.err }

func bullishArticle(now time.Time) models.NewsArticle {
	return models.NewsArticle{Title: "Nifty rally continues, breakout above resistance", PublishedAt: now}
}

func bearishArticle(now time.Time) models.NewsArticle {
	return models.NewsArticle{Title: "Nifty plunges in broad selloff, bearish cues", PublishedAt: now}
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New("")
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestRefreshBlendsProvidersAndPrice(t *testing.T) {
	now := time.Now()
	store := newStore(t)
	svc := New(store, []Provider{
		&stubProvider{name: "news", kind: "news", articles: []models.NewsArticle{bullishArticle(now)}},
		&stubProvider{name: "social", kind: "social", articles: []models.NewsArticle{bearishArticle(now)}},
	}, &stubMomentum{z: 1}, nil)

	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Provider mean (100+0)/2 = 50 at 0.6, price leg 50+20·1 = 70 at
	// 0.4 → 58.
	if math.Abs(snap.Score-58) > 0.01 {
		t.Errorf("score = %v, want 58", snap.Score)
	}

	latest, ok := store.LatestSentiment()
	if !ok || latest.Score != snap.Score {
		t.Error("snapshot should be persisted")
	}
	if store.OutboxBacklog() != 1 {
		t.Errorf("backlog = %d, want 1", store.OutboxBacklog())
	}
}

func TestRefreshPriceLegFallback(t *testing.T) {
	store := newStore(t)
	svc := New(store, nil, &stubMomentum{z: 1.5}, nil)

	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// No provider legs: multi-source falls back to the price leg
	// 50+20·1.5 = 80, so the blend is 80 throughout.
	if math.Abs(snap.Score-80) > 0.01 {
		t.Errorf("score = %v, want 80", snap.Score)
	}
	if snap.Sentiment != models.SentimentBullish {
		t.Errorf("label = %s, want Bullish at 80", snap.Sentiment)
	}
}

func TestRefreshPriceLegClipped(t *testing.T) {
	store := newStore(t)

	high := New(store, nil, &stubMomentum{z: 4}, nil)
	snap, err := high.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Score != 100 {
		t.Errorf("score = %v, want clipped 100", snap.Score)
	}

	low := New(store, nil, &stubMomentum{z: -4}, nil)
	snap, err = low.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Score != 0 {
		t.Errorf("score = %v, want clipped 0", snap.Score)
	}
}

func TestRefreshCombinesWithDecayedRing(t *testing.T) {
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	cur := t0
	store := newStore(t)
	news := &stubProvider{name: "news", kind: "news", articles: []models.NewsArticle{bullishArticle(t0)}}
	svc := New(store, []Provider{news}, nil, nil)
	svc.SetClock(func() time.Time { return cur })

	// First pass, empty ring: news 100 at 0.6, neutral price 50 at
	// 0.4 → 80, taken as-is.
	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if math.Abs(snap.Score-80) > 0.01 {
		t.Errorf("first score = %v, want 80", snap.Score)
	}

	// One half-life later the tone flips bearish: fresh blend 20,
	// decayed average 80 → 0.7·20 + 0.3·80 = 38.
	cur = t0.Add(20 * time.Minute)
	news.articles = []models.NewsArticle{bearishArticle(cur)}
	snap, err = svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if math.Abs(snap.Score-38) > 0.01 {
		t.Errorf("second score = %v, want 38", snap.Score)
	}

	// Third pass bullish again: ring holds 80 (40 min old, w=0.25) and
	// 38 (20 min old, w=0.5) → decayed avg 52, 0.7·80 + 0.3·52 = 71.6.
	cur = t0.Add(40 * time.Minute)
	news.articles = []models.NewsArticle{bullishArticle(cur)}
	snap, err = svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if math.Abs(snap.Score-71.6) > 0.01 {
		t.Errorf("third score = %v, want 71.6", snap.Score)
	}
}

func TestRefreshRingWindowExpires(t *testing.T) {
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	cur := t0
	store := newStore(t)
	news := &stubProvider{name: "news", kind: "news", articles: []models.NewsArticle{bullishArticle(t0)}}
	svc := New(store, []Provider{news}, nil, nil)
	svc.SetClock(func() time.Time { return cur })

	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Past the 60-minute window the earlier sample is gone, so the
	// bearish blend 20 carries no history.
	cur = t0.Add(61 * time.Minute)
	news.articles = []models.NewsArticle{bearishArticle(cur)}
	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if math.Abs(snap.Score-20) > 0.01 {
		t.Errorf("score = %v, want 20 with history expired", snap.Score)
	}
}

func TestRefreshDegradesOnProviderFailure(t *testing.T) {
	now := time.Now()
	store := newStore(t)
	svc := New(store, []Provider{
		&stubProvider{name: "news", kind: "news", articles: []models.NewsArticle{bullishArticle(now)}},
		&stubProvider{name: "social", kind: "social", err: context.DeadlineExceeded},
	}, nil, nil)

	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	// Social leg dropped: news 100 at 0.6 against the neutral price leg.
	if math.Abs(snap.Score-80) > 0.01 {
		t.Errorf("score = %v, want 80 from news and neutral price", snap.Score)
	}
}

func TestRefreshNeutralWithoutProviders(t *testing.T) {
	store := newStore(t)
	svc := New(store, nil, nil, nil)

	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Score != 50 || snap.Sentiment != models.SentimentNeutral {
		t.Errorf("snapshot = %+v, want neutral 50", snap)
	}
}
