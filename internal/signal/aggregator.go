// Package signal derives composite trading signals from raw observations.
package signal

import (
	"context"
	"time"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/market"
	"market-sentinel/internal/models"
	"market-sentinel/pkg/utils"
)

// Aggregator combines the latest price movement with the sentiment window
// into one bounded composite score per instrument. Given identical
// observations it always produces the same signal.
type Aggregator struct {
	source          market.Source
	priceWeight     float64
	sentimentWeight float64
	lookback        time.Duration
	staleness       time.Duration
	minSamples      int

	now func() time.Time
}

// NewAggregator creates an aggregator over the given observation source.
func NewAggregator(source market.Source, cfg config.SignalConfig) *Aggregator {
	minSamples := cfg.MinSentimentSamples
	if minSamples < 1 {
		minSamples = 1
	}
	return &Aggregator{
		source:          source,
		priceWeight:     cfg.PriceWeight,
		sentimentWeight: cfg.SentimentWeight,
		lookback:        cfg.SentimentLookback,
		staleness:       cfg.PriceStaleness(),
		minSamples:      minSamples,
		now:             time.Now,
	}
}

// WithClock overrides the aggregator's clock. Used in tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Aggregate computes the composite signal for an instrument. It fails with
// a DataGapError when no usable price observation exists; that skips the
// instrument for the cycle without aborting the run.
func (a *Aggregator) Aggregate(ctx context.Context, instrument string) (*models.CompositeSignal, error) {
	now := a.now()

	price, err := a.source.LatestPrice(ctx, instrument)
	if err != nil {
		return nil, apperrors.Wrapf(err, "fetching latest price for %s", instrument)
	}
	if price == nil {
		return nil, apperrors.NewDataGapError(instrument, "no price observation")
	}
	if age := now.Sub(price.ObservedAt); age > a.staleness {
		return nil, apperrors.NewDataGapError(instrument,
			"stale price observation (age "+age.Truncate(time.Second).String()+")")
	}

	window, err := a.source.SentimentWindow(ctx, instrument, now.Add(-a.lookback))
	if err != nil {
		return nil, apperrors.Wrapf(err, "fetching sentiment window for %s", instrument)
	}

	priceComponent := utils.Clamp(price.Value, -1, 1)

	// No news is informationally different from neutral news: an absent
	// sentiment window shifts full weight to price instead of pulling the
	// score toward zero.
	wp, ws := a.priceWeight, a.sentimentWeight
	var sentimentComponent float64
	if len(window) < a.minSamples {
		wp, ws = 1, 0
	} else {
		values := make([]float64, len(window))
		for i, obs := range window {
			values[i] = obs.Value
		}
		sentimentComponent = utils.Clamp(utils.Mean(values), -1, 1)
	}

	score := utils.Clamp(wp*priceComponent+ws*sentimentComponent, -1, 1)

	return &models.CompositeSignal{
		Instrument:         instrument,
		Score:              score,
		PriceComponent:     priceComponent,
		SentimentComponent: sentimentComponent,
		SentimentSamples:   len(window),
		ComputedAt:         now,
	}, nil
}
