package market

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Rajchodisetti/crypto-dashboard/internal/adapters"
)

// TokenMetricsAPI is the keyed provider as seen by the service.
type TokenMetricsAPI interface {
	Configured() bool
	Request(ctx context.Context, endpoint string, params adapters.Params) (json.RawMessage, error)
}

// CoinGeckoAPI is the keyless provider as seen by the service.
type CoinGeckoAPI interface {
	Request(ctx context.Context, endpoint string, params adapters.Params) (json.RawMessage, adapters.CacheStatus, error)
}

// ServiceConfig wires the providers. Either provider may be nil.
type ServiceConfig struct {
	TokenMetrics TokenMetricsAPI
	CoinGecko    CoinGeckoAPI
	Generator    *Generator
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Service answers listing and detail queries, trying TokenMetrics first,
// then CoinGecko for index listings, then generated demo data.
type Service struct {
	tm     TokenMetricsAPI
	cg     CoinGeckoAPI
	gen    *Generator
	logger *zap.Logger
	clock  func() time.Time
}

func NewService(config ServiceConfig) *Service {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Generator == nil {
		config.Generator = NewGenerator(nil, config.Clock)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Service{
		tm:     config.TokenMetrics,
		cg:     config.CoinGecko,
		gen:    config.Generator,
		logger: config.Logger,
		clock:  config.Clock,
	}
}

func (s *Service) keyed() bool {
	return s.tm != nil && s.tm.Configured()
}

// Indices lists up to ten indices and reports which source served them.
func (s *Service) Indices(ctx context.Context) ([]Index, Source) {
	if s.keyed() {
		payload, err := s.tm.Request(ctx, "/tokens", nil)
		if err == nil {
			var indices []Index
			if indices, err = tokensToIndices(payload); err == nil {
				s.logger.Info("serving indices", zap.String("source", string(SourceAPI)), zap.Int("count", len(indices)))
				return indices, SourceAPI
			}
		}
		s.logger.Info("tokenmetrics indices unavailable, falling back", zap.Error(err))
	}

	if s.cg != nil {
		payload, status, err := s.cg.Request(ctx, "/coins/markets", adapters.Params{
			"vs_currency": "usd",
			"order":       "market_cap_desc",
			"per_page":    maxListed,
			"page":        1,
		})
		if err == nil {
			var indices []Index
			if indices, err = marketsToIndices(payload); err == nil {
				s.logger.Info("serving indices",
					zap.String("source", string(SourceCoinGecko)),
					zap.String("cache", string(status)),
					zap.Int("count", len(indices)))
				return indices, SourceCoinGecko
			}
		}
		s.logger.Info("coingecko indices unavailable, falling back", zap.Error(err))
	}

	return s.gen.Indices(), SourceMock
}

// Indicators lists up to ten indicators and reports which source served them.
func (s *Service) Indicators(ctx context.Context) ([]Indicator, Source) {
	if s.keyed() {
		payload, err := s.tm.Request(ctx, "/trading-signals", nil)
		if err == nil {
			var indicators []Indicator
			if indicators, err = signalsToIndicators(payload, s.clock()); err == nil {
				s.logger.Info("serving indicators", zap.String("source", string(SourceAPI)), zap.Int("count", len(indicators)))
				return indicators, SourceAPI
			}
		}
		s.logger.Info("tokenmetrics indicators unavailable, falling back", zap.Error(err))
	}
	return s.gen.Indicators(), SourceMock
}

// Index returns one index. With details the result carries a 30-day
// history, generated when the provider does not supply one. Unknown ids
// return ErrNotFound.
func (s *Service) Index(ctx context.Context, id string, details bool) (IndexDetail, Source, error) {
	if s.keyed() {
		var detail IndexDetail
		err := s.fetchDetail(ctx, "/indices/", id, details, &detail)
		if err == nil {
			if details && len(detail.DailyData) == 0 {
				detail.DailyData = s.gen.IndexHistory(detail.Value, detail.Change24h)
			}
			return detail, SourceAPI, nil
		}
		s.logger.Info("tokenmetrics index unavailable, falling back", zap.String("id", id), zap.Error(err))
	}

	idx, ok := findIndex(s.gen.Indices(), id)
	if !ok {
		return IndexDetail{}, SourceMock, ErrNotFound
	}
	detail := IndexDetail{Index: idx}
	if details {
		detail.DailyData = s.gen.IndexHistory(idx.Value, idx.Change24h)
	}
	return detail, SourceMock, nil
}

// Indicator returns one indicator, mirroring Index.
func (s *Service) Indicator(ctx context.Context, id string, details bool) (IndicatorDetail, Source, error) {
	if s.keyed() {
		var detail IndicatorDetail
		err := s.fetchDetail(ctx, "/indicators/", id, details, &detail)
		if err == nil {
			if details && len(detail.DailyData) == 0 {
				signal := detail.Signal
				if signal == "" {
					signal = SignalNeutral
				}
				detail.DailyData = s.gen.IndicatorHistory(detail.Value, signal)
			}
			return detail, SourceAPI, nil
		}
		s.logger.Info("tokenmetrics indicator unavailable, falling back", zap.String("id", id), zap.Error(err))
	}

	ind, ok := findIndicator(s.gen.Indicators(), id)
	if !ok {
		return IndicatorDetail{}, SourceMock, ErrNotFound
	}
	detail := IndicatorDetail{Indicator: ind}
	if details {
		detail.DailyData = s.gen.IndicatorHistory(ind.Value, ind.Signal)
	}
	return detail, SourceMock, nil
}

func (s *Service) fetchDetail(ctx context.Context, prefix, id string, details bool, v any) error {
	var params adapters.Params
	if details {
		params = adapters.Params{"details": "true"}
	}
	payload, err := s.tm.Request(ctx, prefix+url.PathEscape(id), params)
	if err != nil {
		return err
	}
	return detailData(payload, v)
}
