package models

import "time"

// CompositeSignal is the weighted combination of price movement and news
// sentiment for one instrument, recomputed each evaluation cycle. It is
// derived data and never authoritative state.
type CompositeSignal struct {
	Instrument         string
	Score              float64 // always within [-1, 1]
	PriceComponent     float64
	SentimentComponent float64
	SentimentSamples   int
	ComputedAt         time.Time
}

// SignalLabel is a coarse human-readable banding of a composite score.
type SignalLabel string

const (
	LabelStrongBuy  SignalLabel = "STRONG_BUY"
	LabelBuy        SignalLabel = "BUY"
	LabelHold       SignalLabel = "HOLD"
	LabelSell       SignalLabel = "SELL"
	LabelStrongSell SignalLabel = "STRONG_SELL"
)

// Label maps the composite score onto its banding.
func (s *CompositeSignal) Label() SignalLabel {
	switch {
	case s.Score > 0.3:
		return LabelStrongBuy
	case s.Score > 0:
		return LabelBuy
	case s.Score < -0.3:
		return LabelStrongSell
	case s.Score < 0:
		return LabelSell
	default:
		return LabelHold
	}
}
