package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const maxListed = 10

// tmEnvelope is the TokenMetrics response wrapper:
// {"success": true, "message": "...", "length": N, "data": ...}.
type tmEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// row is one TokenMetrics record. Field names arrive upper- or lower-case
// depending on the endpoint version, so lookups try both.
type row map[string]any

func (r row) str(keys ...string) string {
	for _, k := range keys {
		for _, variant := range []string{k, strings.ToLower(k)} {
			if s, ok := r[variant].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (r row) num(keys ...string) float64 {
	for _, k := range keys {
		for _, variant := range []string{k, strings.ToLower(k)} {
			if f, ok := r[variant].(float64); ok && f != 0 {
				return f
			}
		}
	}
	return 0
}

func decodeRows(payload json.RawMessage) ([]row, error) {
	var env tmEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if !env.Success {
		return nil, errors.WithMessage(ErrInvalidResponse, "success flag not set")
	}
	var rows []row
	if err := json.Unmarshal(env.Data, &rows); err != nil || rows == nil {
		return nil, errors.WithMessage(ErrInvalidResponse, "data is not an array")
	}
	if len(rows) > maxListed {
		rows = rows[:maxListed]
	}
	return rows, nil
}

// tokensToIndices maps a /tokens payload onto indices.
func tokensToIndices(payload json.RawMessage) ([]Index, error) {
	rows, err := decodeRows(payload)
	if err != nil {
		return nil, err
	}

	out := make([]Index, 0, len(rows))
	for i, r := range rows {
		price := r.num("CURRENT_PRICE")
		changePercent := r.num("PRICE_CHANGE_PERCENTAGE_24H_IN_CURRENCY")
		symbol := r.str("TOKEN_SYMBOL")

		id := symbol
		if id == "" {
			id = fmt.Sprintf("token-%d", i)
		}
		name := r.str("TOKEN_NAME", "TOKEN_SYMBOL")
		if name == "" {
			name = "Unknown Token"
		}
		if symbol == "" {
			symbol = "N/A"
		}

		out = append(out, Index{
			ID:               strings.ToLower(id),
			Name:             name,
			Symbol:           symbol,
			Value:            price,
			Change24h:        price * (changePercent / 100),
			ChangePercent24h: changePercent,
		})
	}
	return out, nil
}

// signalsToIndicators maps a /trading-signals payload onto indicators.
// TRADING_SIGNAL is 1 (buy), 0 (hold) or -1 (sell).
func signalsToIndicators(payload json.RawMessage, now time.Time) ([]Indicator, error) {
	rows, err := decodeRows(payload)
	if err != nil {
		return nil, err
	}

	out := make([]Indicator, 0, len(rows))
	for i, r := range rows {
		raw := r.num("TRADING_SIGNAL")
		signal := SignalNeutral
		switch raw {
		case 1:
			signal = SignalBullish
		case -1:
			signal = SignalBearish
		}

		symbol := r.str("TOKEN_SYMBOL")
		id := symbol
		if id == "" {
			id = fmt.Sprintf("signal-%d", i)
		}
		name := r.str("TOKEN_NAME")
		if name == "" {
			name = "Trading Signal"
		}
		value := r.num("TM_TRADER_GRADE")
		if value == 0 {
			value = raw
		}
		ts := r.str("DATE")
		if ts == "" {
			ts = now.UTC().Format(time.RFC3339Nano)
		}

		out = append(out, Indicator{
			ID:        strings.ToLower(id),
			Name:      name + " - " + symbol,
			Category:  "Trading Signal",
			Value:     value,
			Signal:    signal,
			Timestamp: ts,
		})
	}
	return out, nil
}

// coinMarket is one /coins/markets record from CoinGecko.
type coinMarket struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	CurrentPrice             float64 `json:"current_price"`
	PriceChange24h           float64 `json:"price_change_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

func marketsToIndices(payload json.RawMessage) ([]Index, error) {
	var coins []coinMarket
	if err := json.Unmarshal(payload, &coins); err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if len(coins) == 0 {
		return nil, errors.WithMessage(ErrInvalidResponse, "no markets returned")
	}
	if len(coins) > maxListed {
		coins = coins[:maxListed]
	}

	out := make([]Index, 0, len(coins))
	for _, c := range coins {
		out = append(out, Index{
			ID:               c.ID,
			Name:             c.Name,
			Symbol:           strings.ToUpper(c.Symbol),
			Value:            c.CurrentPrice,
			Change24h:        c.PriceChange24h,
			ChangePercent24h: c.PriceChangePercentage24h,
		})
	}
	return out, nil
}

// detailData extracts the "data" object from a single-item response.
// A missing or null object reports ErrInvalidResponse.
func detailData(payload json.RawMessage, v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.WithMessage(ErrInvalidResponse, "missing data object")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Wrap(ErrInvalidResponse, err.Error())
	}
	return nil
}
