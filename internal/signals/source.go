package signals

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/tradecore/internal/storage"
	"github.com/seenimoa/tradecore/pkg/models"
	"github.com/seenimoa/tradecore/pkg/utils"
)

// AnalyticsProvider supplies current option chain analytics.
type AnalyticsProvider interface {
	Analytics(ctx context.Context, underlyingKey, expiry string) (*models.OptionChainAnalytics, error)
}

// ChainSource evaluates a template against live chain analytics for the
// nearest weekly expiry. It satisfies the decision service's signal
// source.
type ChainSource struct {
	chain      AnalyticsProvider
	store      *storage.Store
	template   Template
	underlying string
	log        *logrus.Entry
}

// NewChainSource wires a template to the chain analytics service.
func NewChainSource(chain AnalyticsProvider, store *storage.Store, tmpl Template, underlying string, log *logrus.Logger) *ChainSource {
	if log == nil {
		log = logrus.New()
	}
	return &ChainSource{
		chain:      chain,
		store:      store,
		template:   tmpl,
		underlying: underlying,
		log:        log.WithField("component", "signal-source"),
	}
}

// Latest fetches analytics for the nearest weekly expiry and runs the
// template. Triggered signals are persisted before being handed to the
// decision loop. Analytics failures are logged and read as no live
// setup.
func (s *ChainSource) Latest(ctx context.Context, spot float64, now time.Time) (*models.TradingSignal, bool) {
	expiry := utils.NextWeeklyExpiry(now, utils.NiftyExpiryWeekday)
	a, err := s.chain.Analytics(ctx, s.underlying, expiry)
	if err != nil {
		s.log.WithError(err).WithField("expiry", expiry).Debug("chain analytics unavailable")
		return nil, false
	}
	sig, ok := s.template.Evaluate(a, spot, now)
	if !ok || sig == nil {
		return nil, false
	}
	s.store.AppendSignal(*sig)
	s.log.WithFields(logrus.Fields{
		"kind":     sig.Kind,
		"action":   sig.Action,
		"strength": sig.Strength,
	}).Info("chain signal generated")
	return sig, true
}
