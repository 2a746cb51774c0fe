package stubs

// FeedEvent is the envelope the stub feed broadcasts.
type FeedEvent struct {
	Type  string `json:"type"` // price, snapshot
	ID    string `json:"id"`
	TsUTC string `json:"ts_utc"`
	Data  any    `json:"data,omitempty"`
	V     int    `json:"v"`
}

// PriceTick is the payload of a "price" event.
type PriceTick struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	ChangePercent24h float64 `json:"changePercent24h"`
}

// Token is one /tokens row in TokenMetrics' upper-case field style.
type Token struct {
	TokenID       int     `json:"TOKEN_ID"`
	TokenName     string  `json:"TOKEN_NAME"`
	TokenSymbol   string  `json:"TOKEN_SYMBOL"`
	CurrentPrice  float64 `json:"CURRENT_PRICE"`
	MarketCap     float64 `json:"MARKET_CAP"`
	ChangePercent float64 `json:"PRICE_CHANGE_PERCENTAGE_24H_IN_CURRENCY"`
}

// TradingSignal is one /trading-signals row. Signal is 1, 0 or -1.
type TradingSignal struct {
	TokenID       int     `json:"TOKEN_ID"`
	TokenName     string  `json:"TOKEN_NAME"`
	TokenSymbol   string  `json:"TOKEN_SYMBOL"`
	Date          string  `json:"DATE"`
	Signal        int     `json:"TRADING_SIGNAL"`
	Trend         int     `json:"TOKEN_TREND"`
	TraderGrade   float64 `json:"TM_TRADER_GRADE"`
	InvestorGrade float64 `json:"TM_INVESTOR_GRADE"`
}

// CoinMarket is one CoinGecko /coins/markets row.
type CoinMarket struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	CurrentPrice             float64 `json:"current_price"`
	MarketCap                float64 `json:"market_cap"`
	PriceChange24h           float64 `json:"price_change_24h"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

type listEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Length  int    `json:"length"`
	Data    any    `json:"data"`
}

// Fixtures is the canned data the stub serves.
type Fixtures struct {
	Tokens     []Token
	Signals    []TradingSignal
	Markets    []CoinMarket
	Indices    map[string]map[string]any
	Indicators map[string]map[string]any
}

// DefaultFixtures returns a small deterministic data set.
func DefaultFixtures() Fixtures {
	return Fixtures{
		Tokens: []Token{
			{TokenID: 3375, TokenName: "Bitcoin", TokenSymbol: "BTC", CurrentPrice: 64250.12, MarketCap: 1.26e12, ChangePercent: 1.85},
			{TokenID: 3306, TokenName: "Ethereum", TokenSymbol: "ETH", CurrentPrice: 3120.55, MarketCap: 3.75e11, ChangePercent: -0.62},
			{TokenID: 3988, TokenName: "Solana", TokenSymbol: "SOL", CurrentPrice: 148.3, MarketCap: 6.6e10, ChangePercent: 4.1},
		},
		Signals: []TradingSignal{
			{TokenID: 3375, TokenName: "Bitcoin", TokenSymbol: "BTC", Date: "2026-01-05T00:00:00.000Z", Signal: 1, Trend: 1, TraderGrade: 72.4, InvestorGrade: 81.2},
			{TokenID: 3306, TokenName: "Ethereum", TokenSymbol: "ETH", Date: "2026-01-05T00:00:00.000Z", Signal: 0, Trend: 0, TraderGrade: 55.1, InvestorGrade: 70.3},
			{TokenID: 3988, TokenName: "Solana", TokenSymbol: "SOL", Date: "2026-01-05T00:00:00.000Z", Signal: -1, Trend: -1, TraderGrade: 38.9, InvestorGrade: 60.7},
		},
		Markets: []CoinMarket{
			{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: 64210, MarketCap: 1.26e12, PriceChange24h: 1150.2, PriceChangePercentage24h: 1.82},
			{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: 3118.4, MarketCap: 3.75e11, PriceChange24h: -19.6, PriceChangePercentage24h: -0.63},
		},
		Indices: map[string]map[string]any{
			"btc-dominance": {"id": "btc-dominance", "name": "Bitcoin Dominance", "symbol": "BTC.D", "value": 53.1, "change24h": 0.4, "changePercent24h": 0.76},
		},
		Indicators: map[string]map[string]any{
			"rsi-btc": {"id": "rsi-btc", "name": "RSI (14) - Bitcoin", "category": "Momentum", "value": 61.2, "signal": "bullish", "timestamp": "2026-01-05T00:00:00Z"},
		},
	}
}
