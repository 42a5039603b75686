package sentiment

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
)

// Blend weights: provider legs against the price-momentum leg, then
// the fresh reading against the decayed in-memory average.
const (
	multiSourceWeight = 0.6
	priceWeight       = 0.4
	freshWeight       = 0.7
	decayedWeight     = 0.3
)

// Sample-ring defaults.
const (
	defaultWindowMinutes   = 60
	defaultHalfLifeMinutes = 20
	maxRingSamples         = 2000
)

// MomentumSource supplies the momentum z-score feeding the price leg.
type MomentumSource interface {
	MomentumOn(timeframeMin int) (float64, error)
}

type sample struct {
	score float64
	at    time.Time
}

// Service refreshes the blended market sentiment snapshot.
type Service struct {
	store     *storage.Store
	providers []Provider
	momentum  MomentumSource
	log       *logrus.Entry

	windowMinutes   int
	halfLifeMinutes int

	mu                 sync.Mutex
	ring               []sample
	predictionAccuracy float64

	now func() time.Time
}

// New creates the sentiment service. With no providers the multi-source
// leg falls back to the price leg; with no momentum source the price
// leg reads neutral.
func New(store *storage.Store, providers []Provider, momentum MomentumSource, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		store:           store,
		providers:       providers,
		momentum:        momentum,
		log:             log.WithField("component", "sentiment"),
		windowMinutes:   defaultWindowMinutes,
		halfLifeMinutes: defaultHalfLifeMinutes,
		now:             time.Now,
	}
}

// SetClock overrides the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetWindow overrides the sample-ring window and decay half-life.
func (s *Service) SetWindow(windowMinutes, halfLifeMinutes int) {
	if windowMinutes > 0 {
		s.windowMinutes = windowMinutes
	}
	if halfLifeMinutes > 0 {
		s.halfLifeMinutes = halfLifeMinutes
	}
}

// SetPredictionAccuracy records the measured accuracy carried on
// subsequent snapshots. Called by the decision service's daily
// optimization.
func (s *Service) SetPredictionAccuracy(acc float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictionAccuracy = acc
}

// Refresh computes the sentiment score: the price-momentum leg
// clip(50+20z), the equal-weighted mean of the provider legs, a
// 0.6/0.4 blend of the two, combined 0.7/0.3 with the decayed average
// of recent readings. The result joins the ring, is persisted, and is
// queued for publication. Provider failures degrade to the legs that
// worked.
func (s *Service) Refresh(ctx context.Context) (models.MarketSentimentSnapshot, error) {
	now := s.now()

	priceScore := s.priceLeg()

	type legResult struct {
		present    bool
		score      float64
		confidence float64
	}

	results := make([]legResult, len(s.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.providers {
		g.Go(func() error {
			articles, err := p.Fetch(gctx)
			if err != nil {
				s.log.WithError(err).WithField("provider", p.Name()).Warn("sentiment fetch failed")
				return nil // degrade, don't abort the whole refresh
			}
			if len(articles) == 0 {
				return nil
			}
			scored := make([]ScoredArticle, 0, len(articles))
			for _, a := range articles {
				scored = append(scored, ScoreArticle(a))
			}
			score, conf := AggregateScores(scored, now)
			results[i] = legResult{present: true, score: score, confidence: conf}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.MarketSentimentSnapshot{}, err
	}

	// Equal-weighted mean over the providers that produced a reading;
	// the price leg stands in when none did.
	var sum, confSum float64
	var n int
	for _, r := range results {
		if !r.present {
			continue
		}
		sum += r.score
		confSum += r.confidence
		n++
	}
	multiSource := priceScore
	var confidence float64
	if n > 0 {
		multiSource = sum / float64(n)
		confidence = confSum / float64(n)
	}

	blended := multiSourceWeight*multiSource + priceWeight*priceScore

	s.mu.Lock()
	s.trimRingLocked(now)
	score := blended
	if avg, ok := s.decayedAverageLocked(now); ok {
		score = freshWeight*blended + decayedWeight*avg
	}
	s.ring = append(s.ring, sample{score: score, at: now})
	if len(s.ring) > maxRingSamples {
		s.ring = s.ring[len(s.ring)-maxRingSamples:]
	}
	accuracy := s.predictionAccuracy
	s.mu.Unlock()

	snap := models.MarketSentimentSnapshot{
		AsOf:               now,
		Score:              score,
		Confidence:         confidence,
		PredictionAccuracy: accuracy,
		Sentiment:          models.LabelForScore(score),
	}
	s.store.AppendSentiment(snap)
	if err := s.store.EnqueueOutbox(models.TopicSentiment, "market", snap); err != nil {
		s.log.WithError(err).Warn("enqueue sentiment snapshot")
	}
	return snap, nil
}

// priceLeg maps the 5-minute momentum z-score to clip(50+20z, 0, 100);
// neutral when no momentum source is wired or the read fails.
func (s *Service) priceLeg() float64 {
	if s.momentum == nil {
		return 50
	}
	z, err := s.momentum.MomentumOn(5)
	if err != nil {
		s.log.WithError(err).Debug("momentum unavailable for price leg")
		return 50
	}
	score := 50 + 20*z
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// decayedAverageLocked computes the half-life-weighted mean over the
// ring: w = 0.5^(ageMin/halfLife).
func (s *Service) decayedAverageLocked(now time.Time) (float64, bool) {
	if len(s.ring) == 0 {
		return 0, false
	}
	var weighted, weights float64
	for _, smp := range s.ring {
		ageMin := now.Sub(smp.at).Minutes()
		w := math.Pow(0.5, ageMin/float64(s.halfLifeMinutes))
		weighted += smp.score * w
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	return weighted / weights, true
}

// trimRingLocked drops samples that aged out of the window.
func (s *Service) trimRingLocked(now time.Time) {
	cutoff := now.Add(-time.Duration(s.windowMinutes) * time.Minute)
	i := 0
	for i < len(s.ring) && s.ring[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.ring = s.ring[i:]
	}
}
