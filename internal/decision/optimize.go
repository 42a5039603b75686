package decision

import (
	"time"

	"github.com/seenimoa/tradecore/pkg/models"
)

// KV keys for the adaptive weight set and its A/B variants. Variants
// live for seven days; expiry falls the service back to the configured
// baseline.
const (
	weightsActiveKey   = "weights:active"
	weightsVariantAKey = "weights:variant:a"
	weightsVariantBKey = "weights:variant:b"
	weightsTTL         = 7 * 24 * time.Hour

	boostFactor  = 0.10
	variantDelta = 0.05
)

// ActiveWeights returns the adaptive weight set when one is stored,
// otherwise the configured baseline.
func (s *Service) ActiveWeights() models.StrategyWeights {
	if s.kv != nil {
		var w models.StrategyWeights
		if s.kv.GetJSON(weightsActiveKey, &w) && w != (models.StrategyWeights{}) {
			return w
		}
	}
	return s.cfg.Weights
}

// OptimizeDaily re-tunes the strategy weights from realized advice
// accuracy. When accuracy over the window falls below the boost
// threshold, the sentiment weight grows 10% (capped at 1.0), the regime
// weight shrinks 10%, and the momentum weight absorbs the remainder
// (floored at 0). Two A/B variants at ±0.05 sentiment weight are stored
// alongside the active set, all with a 7-day TTL.
func (s *Service) OptimizeDaily() models.StrategyWeights {
	stats := s.store.AdviceStatistics()
	resolved := stats.Executed + stats.Failed
	accuracy := accuracyFrom(stats)

	w := s.ActiveWeights()
	if resolved > 0 && accuracy < s.cfg.MinAccuracyForBoost {
		w.Sentiment = clamp(w.Sentiment*(1+boostFactor), 0, 1)
		w.Regime = w.Regime * (1 - boostFactor)
		w.Momentum = 1 - w.Sentiment - w.Regime
		if w.Momentum < 0 {
			w.Momentum = 0
		}
		s.log.WithField("accuracy", accuracy).Info("weights boosted after weak accuracy")
	}

	if s.kv != nil {
		s.kv.PutJSON(weightsActiveKey, w, weightsTTL)
		s.kv.PutJSON(weightsVariantAKey, shiftSentiment(w, variantDelta), weightsTTL)
		s.kv.PutJSON(weightsVariantBKey, shiftSentiment(w, -variantDelta), weightsTTL)
	}
	return w
}

// shiftSentiment moves the sentiment weight by delta and rebalances the
// other two legs proportionally so the set still sums to the original
// total.
func shiftSentiment(w models.StrategyWeights, delta float64) models.StrategyWeights {
	out := w
	out.Sentiment = clamp(w.Sentiment+delta, 0, 1)
	rest := w.Regime + w.Momentum
	moved := out.Sentiment - w.Sentiment
	if rest > 0 {
		out.Regime = clamp(w.Regime-moved*(w.Regime/rest), 0, 1)
		out.Momentum = clamp(w.Momentum-moved*(w.Momentum/rest), 0, 1)
	}
	return out
}
