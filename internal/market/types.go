package market

import "errors"

// Source tells where a listing came from.
type Source string

const (
	SourceAPI       Source = "api"
	SourceCoinGecko Source = "coingecko"
	SourceMock      Source = "mock"
)

// Signal is an indicator's directional reading.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalNeutral Signal = "neutral"
	SignalBearish Signal = "bearish"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidResponse = errors.New("invalid API response format")
)

// Index is a tracked market index or token price.
type Index struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Symbol           string  `json:"symbol"`
	Value            float64 `json:"value"`
	Change24h        float64 `json:"change24h"`
	ChangePercent24h float64 `json:"changePercent24h"`
}

// Indicator is a technical indicator or trading signal.
type Indicator struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Value     float64 `json:"value"`
	Signal    Signal  `json:"signal"`
	Timestamp string  `json:"timestamp"`
}

// DailyDataPoint is one day of a 30-day history.
type DailyDataPoint struct {
	Date          string  `json:"date"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// IndexDetail is an Index with optional daily history.
type IndexDetail struct {
	Index
	DailyData []DailyDataPoint `json:"dailyData,omitempty"`
}

// IndicatorDetail is an Indicator with optional daily history.
type IndicatorDetail struct {
	Indicator
	DailyData []DailyDataPoint `json:"dailyData,omitempty"`
}
