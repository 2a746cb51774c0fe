package market

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const historyDays = 30

// Generator produces the fixed demo listings and synthetic daily history
// used when no provider can answer.
type Generator struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	clock func() time.Time
}

// NewGenerator returns a Generator. Nil rnd seeds from the clock; nil clock
// uses time.Now.
func NewGenerator(rnd *rand.Rand, clock func() time.Time) *Generator {
	if clock == nil {
		clock = time.Now
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(clock().UnixNano()))
	}
	return &Generator{rnd: rnd, clock: clock}
}

// Indices returns the demo index set.
func (g *Generator) Indices() []Index {
	return []Index{
		{ID: "btc-dominance", Name: "Bitcoin Dominance", Symbol: "BTC.D", Value: 52.34, Change24h: 1.2, ChangePercent24h: 2.35},
		{ID: "eth-dominance", Name: "Ethereum Dominance", Symbol: "ETH.D", Value: 18.76, Change24h: -0.5, ChangePercent24h: -2.6},
		{ID: "crypto-market-cap", Name: "Total Market Cap", Symbol: "TOTAL", Value: 2450000000000, Change24h: 50000000000, ChangePercent24h: 2.08},
		{ID: "fear-greed", Name: "Fear & Greed Index", Symbol: "FGI", Value: 65, Change24h: 5, ChangePercent24h: 8.33},
	}
}

// Indicators returns the demo indicator set stamped with the current time.
func (g *Generator) Indicators() []Indicator {
	ts := g.clock().UTC().Format(time.RFC3339Nano)
	return []Indicator{
		{ID: "rsi-btc", Name: "RSI (14) - Bitcoin", Category: "Momentum", Value: 58.5, Signal: SignalBullish, Timestamp: ts},
		{ID: "macd-btc", Name: "MACD - Bitcoin", Category: "Trend", Value: 1250.5, Signal: SignalBullish, Timestamp: ts},
		{ID: "bollinger-btc", Name: "Bollinger Bands - Bitcoin", Category: "Volatility", Value: 0.85, Signal: SignalNeutral, Timestamp: ts},
		{ID: "volume-profile", Name: "Volume Profile", Category: "Volume", Value: 0.72, Signal: SignalBullish, Timestamp: ts},
		{ID: "support-resistance", Name: "Support/Resistance Levels", Category: "Technical", Value: 42000, Signal: SignalNeutral, Timestamp: ts},
	}
}

// IndexHistory generates 30 days ending today with up to 5% variation
// around baseValue and baseChange.
func (g *Generator) IndexHistory(baseValue, baseChange float64) []DailyDataPoint {
	return g.history(func(variation float64) (float64, float64) {
		return baseValue * (1 + variation), baseChange * (1 + variation)
	}, func(v float64) float64 { return v })
}

// IndicatorHistory generates 30 days around baseValue. Bullish series only
// drift up and bearish series only drift down, at half amplitude.
func (g *Generator) IndicatorHistory(baseValue float64, signal Signal) []DailyDataPoint {
	bias := func(v float64) float64 {
		switch signal {
		case SignalBullish:
			return math.Abs(v) * 0.5
		case SignalBearish:
			return -math.Abs(v) * 0.5
		default:
			return v
		}
	}
	return g.history(func(variation float64) (float64, float64) {
		return baseValue * (1 + variation), baseValue * variation
	}, bias)
}

func (g *Generator) history(point func(variation float64) (value, change float64), bias func(float64) float64) []DailyDataPoint {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.clock().UTC()
	out := make([]DailyDataPoint, 0, historyDays)
	for i := historyDays - 1; i >= 0; i-- {
		variation := bias((g.rnd.Float64() - 0.5) * 0.1)
		value, change := point(variation)

		var changePercent float64
		if prev := value - change; prev != 0 {
			changePercent = change / prev * 100
		}

		out = append(out, DailyDataPoint{
			Date:          today.AddDate(0, 0, -i).Format("2006-01-02"),
			Value:         round2(value),
			Change:        round2(change),
			ChangePercent: round2(changePercent),
		})
	}
	return out
}

func findIndex(list []Index, id string) (Index, bool) {
	for _, idx := range list {
		if idx.ID == id {
			return idx, true
		}
	}
	return Index{}, false
}

func findIndicator(list []Indicator, id string) (Indicator, bool) {
	for _, ind := range list {
		if ind.ID == id {
			return ind, true
		}
	}
	return Indicator{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
