package forecastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"forecast-dashboard/pkg/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds every call made by the client.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 8 << 20
	tracerName       = "forecast-dashboard/pkg/forecastapi"
)

// ErrBlankInput is wrapped in a PreconditionError for empty chat or knowledge input.
var ErrBlankInput = errors.New("input must not be blank")

// CallRecord describes one completed backend call.
type CallRecord struct {
	Timestamp  time.Time
	Method     string
	Endpoint   string
	StatusCode int
	Duration   time.Duration
	ErrorClass string
}

// CallObserver receives a record after every backend call.
type CallObserver interface {
	ObserveCall(CallRecord)
}

// Client talks to the forecasting / scenario / assistant service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	observer   CallObserver
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithObserver registers a call observer.
func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- wire shapes ---

type forecastPointWire struct {
	Date              *string  `json:"date"`
	PredictedQuantity *float64 `json:"predicted_quantity"`
	PredictedRevenue  *float64 `json:"predicted_revenue"`
	ConfidenceLower   *float64 `json:"confidence_lower"`
	ConfidenceUpper   *float64 `json:"confidence_upper"`
}

type forecastWire struct {
	ProductID    *string             `json:"product_id"`
	ModelVersion *string             `json:"model_version"`
	Points       []forecastPointWire `json:"points"`
}

type backtestWire struct {
	MAE          *float64 `json:"mae"`
	MAPE         *float64 `json:"mape"`
	NPredictions *int     `json:"n_predictions"`
	Message      *string  `json:"message"`
}

type scenarioRequestWire struct {
	ProductID     string  `json:"product_id"`
	FromDate      string  `json:"from_date"`
	ToDate        string  `json:"to_date"`
	PriceDeltaPct float64 `json:"price_delta_pct"`
}

type scenarioWire struct {
	PriceDeltaPct    *float64 `json:"price_delta_pct"`
	DeltaRevenuePct  *float64 `json:"delta_revenue_pct"`
	DeltaQuantityPct *float64 `json:"delta_quantity_pct"`
}

type chatRequestWire struct {
	Message  string `json:"message"`
	Provider string `json:"provider"`
}

type chatWire struct {
	Answer    *string           `json:"answer"`
	UsedTools []string          `json:"used_tools"`
	Citations []models.Citation `json:"citations"`
}

type knowledgeRequestWire struct {
	Query string `json:"query"`
}

type knowledgeWire struct {
	Answer    *string           `json:"answer"`
	Citations []models.Citation `json:"citations"`
}

// --- operations ---

// FetchProducts returns the product identifiers known to the service, in service order.
func (c *Client) FetchProducts(ctx context.Context) ([]string, error) {
	var products []string
	if err := c.doRequest(ctx, "products", http.MethodGet, "/api/products", nil, nil, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []string{}
	}
	return products, nil
}

// FetchForecast returns the forecast for the range. An empty Points slice is a
// valid answer meaning the service has no trained model or no data.
func (c *Client) FetchForecast(ctx context.Context, productID string, from, to models.Date) (*models.ForecastSeries, error) {
	const op = "forecast"
	if strings.TrimSpace(productID) == "" {
		return nil, &PreconditionError{Op: op, Err: models.ErrEmptyProductID}
	}
	var wire forecastWire
	if err := c.doRequest(ctx, op, http.MethodGet, "/api/forecast", rangeQuery(productID, from, to), nil, &wire); err != nil {
		return nil, err
	}
	series, err := wire.toSeries()
	if err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	return series, nil
}

// FetchBacktest returns the historical accuracy summary. Callers treat every
// failure as "unavailable"; the error is still returned so they can log it.
func (c *Client) FetchBacktest(ctx context.Context, productID string, from, to models.Date) (*models.BacktestSummary, error) {
	const op = "backtest"
	if strings.TrimSpace(productID) == "" {
		return nil, &PreconditionError{Op: op, Err: models.ErrEmptyProductID}
	}
	var wire backtestWire
	if err := c.doRequest(ctx, op, http.MethodGet, "/api/backtest", rangeQuery(productID, from, to), nil, &wire); err != nil {
		return nil, err
	}
	summary, err := wire.toSummary()
	if err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	return summary, nil
}

// FetchScenario projects the effect of a price change against the baseline forecast.
func (c *Client) FetchScenario(ctx context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error) {
	const op = "scenario"
	if err := q.Validate(); err != nil {
		return nil, &PreconditionError{Op: op, Err: err}
	}
	body := scenarioRequestWire{
		ProductID:     q.ProductID,
		FromDate:      q.FromDate.String(),
		ToDate:        q.ToDate.String(),
		PriceDeltaPct: q.PriceDeltaPct,
	}
	var wire scenarioWire
	if err := c.doRequest(ctx, op, http.MethodPost, "/api/scenario/price-change", nil, body, &wire); err != nil {
		return nil, err
	}
	result := &models.ScenarioResult{
		PriceDeltaPct:    q.PriceDeltaPct,
		DeltaRevenuePct:  wire.DeltaRevenuePct,
		DeltaQuantityPct: wire.DeltaQuantityPct,
	}
	if wire.PriceDeltaPct != nil {
		result.PriceDeltaPct = *wire.PriceDeltaPct
	}
	return result, nil
}

// FetchChat asks the general assistant. Blank messages are rejected without a request.
func (c *Client) FetchChat(ctx context.Context, message string, provider models.Provider) (*models.ChatTurn, error) {
	const op = "chat"
	question := strings.TrimSpace(message)
	if question == "" {
		return nil, &PreconditionError{Op: op, Err: ErrBlankInput}
	}
	if provider == "" {
		provider = models.ProviderPrimary
	}
	var wire chatWire
	body := chatRequestWire{Message: question, Provider: provider.WireName()}
	if err := c.doRequest(ctx, op, http.MethodPost, "/api/assistant/chat", nil, body, &wire); err != nil {
		return nil, err
	}
	if wire.Answer == nil {
		return nil, &DecodeError{Op: op, Err: errors.New("missing answer")}
	}
	turn := &models.ChatTurn{
		Question:  question,
		Provider:  provider,
		Answer:    *wire.Answer,
		UsedTools: wire.UsedTools,
		Citations: wire.Citations,
	}
	if turn.UsedTools == nil {
		turn.UsedTools = []string{}
	}
	if turn.Citations == nil {
		turn.Citations = []models.Citation{}
	}
	return turn, nil
}

// FetchKnowledgeQuery asks the document assistant. Blank queries are rejected without a request.
func (c *Client) FetchKnowledgeQuery(ctx context.Context, query string) (*models.KnowledgeAnswer, error) {
	const op = "knowledge query"
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, &PreconditionError{Op: op, Err: ErrBlankInput}
	}
	var wire knowledgeWire
	if err := c.doRequest(ctx, op, http.MethodPost, "/api/knowledge/query", nil, knowledgeRequestWire{Query: q}, &wire); err != nil {
		return nil, err
	}
	if wire.Answer == nil {
		return nil, &DecodeError{Op: op, Err: errors.New("missing answer")}
	}
	answer := &models.KnowledgeAnswer{Answer: *wire.Answer, Citations: wire.Citations}
	if answer.Citations == nil {
		answer.Citations = []models.Citation{}
	}
	return answer, nil
}

// Health pings the service health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, "health", http.MethodGet, "/api/health", nil, nil, nil)
}

// doRequest performs one JSON round trip and maps every failure onto the error taxonomy.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "forecastapi."+strings.ReplaceAll(op, " ", "_"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	start := time.Now()
	status := 0
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		span.End()
		if c.observer != nil {
			c.observer.ObserveCall(CallRecord{
				Timestamp:  start,
				Method:     method,
				Endpoint:   path,
				StatusCode: status,
				Duration:   time.Since(start),
				ErrorClass: ErrorClass(err),
			})
		}
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return &PreconditionError{Op: op, Err: fmt.Errorf("encode request: %w", merr)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(blob)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

func rangeQuery(productID string, from, to models.Date) url.Values {
	q := url.Values{}
	q.Set("product_id", strings.TrimSpace(productID))
	q.Set("from_date", from.String())
	q.Set("to_date", to.String())
	return q
}

// errorMessage extracts FastAPI's {"detail": ...} or a generic {"error": ...} body.
func errorMessage(blob []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(blob, &payload); err != nil {
		return strings.TrimSpace(truncate(string(blob), 200))
	}
	if len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			return detail
		}
		return truncate(string(payload.Detail), 200)
	}
	return payload.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
