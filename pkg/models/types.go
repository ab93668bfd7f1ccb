package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format exchanged with the forecast service.
const DateLayout = "2006-01-02"

var (
	// ErrEmptyProductID is returned when a query has no product identifier.
	ErrEmptyProductID = errors.New("product id must not be empty")
	// ErrInvertedRange is returned when fromDate is after toDate.
	ErrInvertedRange = errors.New("from date must not be after to date")
)

// Date is a calendar date without time of day, always in UTC.
type Date struct {
	t time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for constants; it panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) After(o Date) bool { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ForecastQuery identifies one forecast request.
type ForecastQuery struct {
	ProductID string `json:"product_id"`
	FromDate  Date   `json:"from_date"`
	ToDate    Date   `json:"to_date"`
}

// NewForecastQuery parses the date strings and validates the result.
func NewForecastQuery(productID, fromDate, toDate string) (ForecastQuery, error) {
	from, err := ParseDate(fromDate)
	if err != nil {
		return ForecastQuery{}, err
	}
	to, err := ParseDate(toDate)
	if err != nil {
		return ForecastQuery{}, err
	}
	q := ForecastQuery{ProductID: strings.TrimSpace(productID), FromDate: from, ToDate: to}
	if err := q.Validate(); err != nil {
		return ForecastQuery{}, err
	}
	return q, nil
}

// Validate checks the product id and the date range ordering.
func (q ForecastQuery) Validate() error {
	if strings.TrimSpace(q.ProductID) == "" {
		return ErrEmptyProductID
	}
	if q.FromDate.IsZero() || q.ToDate.IsZero() {
		return fmt.Errorf("date range must be set")
	}
	if q.FromDate.After(q.ToDate) {
		return ErrInvertedRange
	}
	return nil
}

// Equal reports whether both queries name the same product and range.
func (q ForecastQuery) Equal(o ForecastQuery) bool {
	return q.ProductID == o.ProductID && q.FromDate.Equal(o.FromDate) && q.ToDate.Equal(o.ToDate)
}

// ForecastPoint is one date's predicted demand.
type ForecastPoint struct {
	Date              Date     `json:"date"`
	PredictedQuantity float64  `json:"predicted_quantity"`
	PredictedRevenue  *float64 `json:"predicted_revenue,omitempty"`
	ConfidenceLower   *float64 `json:"confidence_lower,omitempty"`
	ConfidenceUpper   *float64 `json:"confidence_upper,omitempty"`
}

// ForecastSeries holds points sorted ascending by date. Points may be empty
// when the service has no trained model for the range.
type ForecastSeries struct {
	ProductID    string          `json:"product_id"`
	ModelVersion string          `json:"model_version,omitempty"`
	Points       []ForecastPoint `json:"points"`
}

// BacktestMetrics compares past predictions with actual sales.
type BacktestMetrics struct {
	MAE          float64 `json:"mae"`
	MAPE         float64 `json:"mape"`
	NPredictions *int    `json:"n_predictions,omitempty"`
}

// BacktestSummary is either Metrics or an unavailable Message, never both.
type BacktestSummary struct {
	Metrics *BacktestMetrics `json:"metrics,omitempty"`
	Message string           `json:"message,omitempty"`
}

// BacktestAvailable wraps metrics into a summary.
func BacktestAvailable(m BacktestMetrics) BacktestSummary {
	return BacktestSummary{Metrics: &m}
}

// BacktestUnavailable is the degraded summary shown when no backtest could be computed.
func BacktestUnavailable(message string) BacktestSummary {
	return BacktestSummary{Message: message}
}

// Available reports whether metrics are present.
func (b BacktestSummary) Available() bool {
	return b.Metrics != nil
}

// ScenarioQuery is a forecast query with a hypothetical price change in percent.
type ScenarioQuery struct {
	ForecastQuery
	PriceDeltaPct float64 `json:"price_delta_pct"`
}

// ErrNonFiniteDelta is returned for NaN or infinite price deltas.
var ErrNonFiniteDelta = errors.New("price delta must be a finite number")

// Validate checks the embedded query and the price delta.
func (q ScenarioQuery) Validate() error {
	if err := q.ForecastQuery.Validate(); err != nil {
		return err
	}
	if math.IsNaN(q.PriceDeltaPct) || math.IsInf(q.PriceDeltaPct, 0) {
		return ErrNonFiniteDelta
	}
	return nil
}

// ScenarioResult carries the projected deltas; either may be absent when the
// service had no baseline to compare against.
type ScenarioResult struct {
	PriceDeltaPct    float64  `json:"price_delta_pct"`
	DeltaRevenuePct  *float64 `json:"delta_revenue_pct,omitempty"`
	DeltaQuantityPct *float64 `json:"delta_quantity_pct,omitempty"`
}

// Provider selects which language model backs the general assistant.
type Provider string

const (
	ProviderPrimary   Provider = "primary"
	ProviderSecondary Provider = "secondary"
)

// ParseProvider accepts the logical names and the wire names.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "openai":
		return ProviderPrimary, nil
	case "secondary", "deepseek":
		return ProviderSecondary, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// WireName is the provider value the chat endpoint expects.
func (p Provider) WireName() string {
	if p == ProviderSecondary {
		return "deepseek"
	}
	return "openai"
}

// Label is the human-readable provider name.
func (p Provider) Label() string {
	if p == ProviderSecondary {
		return "DeepSeek"
	}
	return "OpenAI"
}

// ChatTurn is one question/answer exchange with an assistant.
type ChatTurn struct {
	Question  string     `json:"question"`
	Provider  Provider   `json:"provider,omitempty"`
	Answer    string     `json:"answer"`
	UsedTools []string   `json:"used_tools"`
	Citations []Citation `json:"citations"`
}

// KnowledgeAnswer is the document assistant's reply.
type KnowledgeAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}
