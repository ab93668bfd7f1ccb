package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"

	"github.com/shopspring/decimal"
)

// DefaultPriceDeltaPct is the price change a new comparator starts with.
const DefaultPriceDeltaPct = 5.0

const notAvailable = "N/A"

// ScenarioAPI is the backend capability the comparator needs.
type ScenarioAPI interface {
	FetchScenario(ctx context.Context, q models.ScenarioQuery) (*models.ScenarioResult, error)
}

// ScenarioDisplay is a formatted ScenarioResult.
type ScenarioDisplay struct {
	PriceLabel string `json:"price_label"`
	Revenue    string `json:"revenue"`
	Quantity   string `json:"quantity"`
	Summary    string `json:"summary"`
}

// ScenarioSnapshot is the comparator state as seen by a view.
type ScenarioSnapshot struct {
	PriceDeltaPct float64                `json:"price_delta_pct"`
	PriceLabel    string                 `json:"price_label"`
	Loading       bool                   `json:"loading"`
	Error         string                 `json:"error,omitempty"`
	Result        *models.ScenarioResult `json:"result,omitempty"`
	Display       *ScenarioDisplay       `json:"display,omitempty"`
}

// ScenarioComparator holds the price delta of one forecast view and the
// outcome of its last scenario run.
type ScenarioComparator struct {
	api ScenarioAPI

	mu            sync.Mutex
	priceDeltaPct float64
	result        *models.ScenarioResult
	loading       bool
	err           string
}

func NewScenarioComparator(api ScenarioAPI) *ScenarioComparator {
	return &ScenarioComparator{api: api, priceDeltaPct: DefaultPriceDeltaPct}
}

// SetPriceDelta accepts any finite percentage, including zero and negatives.
func (s *ScenarioComparator) SetPriceDelta(pct float64) error {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return &forecastapi.PreconditionError{Op: "set price delta", Err: models.ErrNonFiniteDelta}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceDeltaPct = pct
	return nil
}

// Submit runs the scenario for q at the current price delta and blocks until
// it settles. A second Submit while one is pending returns ErrSubmissionPending.
func (s *ScenarioComparator) Submit(ctx context.Context, q models.ForecastQuery) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return forecastapi.ErrSubmissionPending
	}
	sq := models.ScenarioQuery{ForecastQuery: q, PriceDeltaPct: s.priceDeltaPct}
	if err := sq.Validate(); err != nil {
		s.mu.Unlock()
		return &forecastapi.PreconditionError{Op: "scenario", Err: err}
	}
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	result, err := s.api.FetchScenario(ctx, sq)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		log.Printf("[scenario] ⚠️ %s %+.2f%% failed: %v", q.ProductID, sq.PriceDeltaPct, err)
		s.result = nil
		s.err = err.Error()
		return err
	}
	s.result = result
	return nil
}

// Snapshot returns a copy of the current state with display strings filled in.
func (s *ScenarioComparator) Snapshot() ScenarioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := ScenarioSnapshot{
		PriceDeltaPct: s.priceDeltaPct,
		PriceLabel:    FormatPriceDelta(s.priceDeltaPct),
		Loading:       s.loading,
		Error:         s.err,
	}
	if s.result != nil {
		r := *s.result
		d := FormatScenario(r)
		snap.Result = &r
		snap.Display = &d
	}
	return snap
}

// FormatScenario renders both deltas independently; an absent delta shows N/A.
func FormatScenario(r models.ScenarioResult) ScenarioDisplay {
	d := ScenarioDisplay{
		PriceLabel: FormatPriceDelta(r.PriceDeltaPct),
		Revenue:    FormatSignedPercent(r.DeltaRevenuePct),
		Quantity:   FormatSignedPercent(r.DeltaQuantityPct),
	}
	d.Summary = fmt.Sprintf("Price %s: Revenue %s, Quantity %s", d.PriceLabel, d.Revenue, d.Quantity)
	return d
}

// FormatSignedPercent renders v with an explicit sign and one decimal place,
// e.g. "+12.3%" or "-3.0%". Rounding is half away from zero on the shortest
// decimal form of v, so 12.35 gives "+12.4%" even though its binary value is
// slightly below. The sign follows the rounded value: -0.04 gives "+0.0%".
func FormatSignedPercent(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return notAvailable
	}
	rounded := decimal.NewFromFloat(*v).Round(1)
	if rounded.IsNegative() {
		return rounded.StringFixed(1) + "%"
	}
	return "+" + rounded.StringFixed(1) + "%"
}

// FormatPriceDelta renders the requested change as "+5%", "-2.5%" or "0%".
func FormatPriceDelta(pct float64) string {
	d := decimal.NewFromFloat(pct)
	if d.IsPositive() {
		return "+" + d.String() + "%"
	}
	return d.String() + "%"
}
