package services

import (
	"context"
	"errors"
	"sync/atomic"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"
)

var (
	june1  = models.MustParseDate("2023-06-01")
	june30 = models.MustParseDate("2023-06-30")
)

func juneQuery(productID string) models.ForecastQuery {
	return models.ForecastQuery{ProductID: productID, FromDate: june1, ToDate: june30}
}

func floatPtr(v float64) *float64 { return &v }

// linearSeries returns n daily points from `from` with quantities rising
// linearly from lo to hi.
func linearSeries(productID string, from models.Date, n int, lo, hi float64) *models.ForecastSeries {
	s := &models.ForecastSeries{ProductID: productID, Points: make([]models.ForecastPoint, n)}
	for i := 0; i < n; i++ {
		qty := lo
		if n > 1 {
			qty = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		s.Points[i] = models.ForecastPoint{
			Date:              from.AddDays(i),
			PredictedQuantity: qty,
			PredictedRevenue:  floatPtr(qty * 100),
		}
	}
	return s
}

// fakeBackend implements ForecastBackend with overridable behaviour and call counters.
type fakeBackend struct {
	productsFn  func(ctx context.Context) ([]string, error)
	forecastFn  func(ctx context.Context, productID string, from, to models.Date) (*models.ForecastSeries, error)
	backtestFn  func(ctx context.Context, productID string, from, to models.Date) (*models.BacktestSummary, error)
	scenarioFn  func(ctx context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error)
	chatFn      func(ctx context.Context, message string, provider models.Provider) (*models.ChatTurn, error)
	knowledgeFn func(ctx context.Context, query string) (*models.KnowledgeAnswer, error)

	productCalls   atomic.Int32
	forecastCalls  atomic.Int32
	backtestCalls  atomic.Int32
	scenarioCalls  atomic.Int32
	chatCalls      atomic.Int32
	knowledgeCalls atomic.Int32
}

var errBackendDown = &forecastapi.NetworkError{Op: "test", Err: errors.New("connection refused")}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		productsFn: func(context.Context) ([]string, error) {
			return []string{"P001", "P002", "P003"}, nil
		},
		forecastFn: func(_ context.Context, productID string, from, _ models.Date) (*models.ForecastSeries, error) {
			return linearSeries(productID, from, 5, 10, 20), nil
		},
		backtestFn: func(context.Context, string, models.Date, models.Date) (*models.BacktestSummary, error) {
			s := models.BacktestAvailable(models.BacktestMetrics{MAE: 1.5, MAPE: 8.3})
			return &s, nil
		},
		scenarioFn: func(_ context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error) {
			return &models.ScenarioResult{PriceDeltaPct: q.PriceDeltaPct, DeltaRevenuePct: floatPtr(12.34), DeltaQuantityPct: floatPtr(-3)}, nil
		},
		chatFn: func(_ context.Context, message string, provider models.Provider) (*models.ChatTurn, error) {
			return &models.ChatTurn{Question: message, Provider: provider, Answer: "answer to " + message, UsedTools: []string{"forecast"}}, nil
		},
		knowledgeFn: func(_ context.Context, query string) (*models.KnowledgeAnswer, error) {
			c, _ := models.NewCitation([]byte(`{"document_id":"handbook.pdf","chunk":"3"}`))
			return &models.KnowledgeAnswer{Answer: "see " + query, Citations: []models.Citation{c}}, nil
		},
	}
}

func (f *fakeBackend) FetchProducts(ctx context.Context) ([]string, error) {
	f.productCalls.Add(1)
	return f.productsFn(ctx)
}

func (f *fakeBackend) FetchForecast(ctx context.Context, productID string, from, to models.Date) (*models.ForecastSeries, error) {
	f.forecastCalls.Add(1)
	return f.forecastFn(ctx, productID, from, to)
}

func (f *fakeBackend) FetchBacktest(ctx context.Context, productID string, from, to models.Date) (*models.BacktestSummary, error) {
	f.backtestCalls.Add(1)
	return f.backtestFn(ctx, productID, from, to)
}

func (f *fakeBackend) FetchScenario(ctx context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error) {
	f.scenarioCalls.Add(1)
	return f.scenarioFn(ctx, q)
}

func (f *fakeBackend) FetchChat(ctx context.Context, message string, provider models.Provider) (*models.ChatTurn, error) {
	f.chatCalls.Add(1)
	return f.chatFn(ctx, message, provider)
}

func (f *fakeBackend) FetchKnowledgeQuery(ctx context.Context, query string) (*models.KnowledgeAnswer, error) {
	f.knowledgeCalls.Add(1)
	return f.knowledgeFn(ctx, query)
}
