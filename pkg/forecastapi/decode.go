package forecastapi

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"forecast-dashboard/pkg/models"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if !finite(*v) || *v < 0 {
		return fmt.Errorf("%s must be a non-negative number, got %v", name, *v)
	}
	return nil
}

func (w forecastWire) toSeries() (*models.ForecastSeries, error) {
	if w.ProductID == nil || strings.TrimSpace(*w.ProductID) == "" {
		return nil, errors.New("missing product_id")
	}
	series := &models.ForecastSeries{
		ProductID: *w.ProductID,
		Points:    make([]models.ForecastPoint, 0, len(w.Points)),
	}
	if w.ModelVersion != nil {
		series.ModelVersion = *w.ModelVersion
	}
	var prev models.Date
	for i, p := range w.Points {
		if p.Date == nil {
			return nil, fmt.Errorf("point %d: missing date", i)
		}
		date, err := models.ParseDate(*p.Date)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		if i > 0 && !date.After(prev) {
			return nil, fmt.Errorf("point %d: date %s is not after %s", i, date, prev)
		}
		if p.PredictedQuantity == nil {
			return nil, fmt.Errorf("point %d: missing predicted_quantity", i)
		}
		if err := nonNegative("predicted_quantity", p.PredictedQuantity); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		if err := nonNegative("predicted_revenue", p.PredictedRevenue); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		series.Points = append(series.Points, models.ForecastPoint{
			Date:              date,
			PredictedQuantity: *p.PredictedQuantity,
			PredictedRevenue:  p.PredictedRevenue,
			ConfidenceLower:   p.ConfidenceLower,
			ConfidenceUpper:   p.ConfidenceUpper,
		})
		prev = date
	}
	return series, nil
}

func (w backtestWire) toSummary() (*models.BacktestSummary, error) {
	switch {
	case w.MAE != nil:
		if w.MAPE == nil {
			return nil, errors.New("mae present without mape")
		}
		if err := nonNegative("mae", w.MAE); err != nil {
			return nil, err
		}
		if err := nonNegative("mape", w.MAPE); err != nil {
			return nil, err
		}
		if w.NPredictions != nil && *w.NPredictions < 0 {
			return nil, fmt.Errorf("n_predictions must not be negative, got %d", *w.NPredictions)
		}
		s := models.BacktestAvailable(models.BacktestMetrics{
			MAE:          *w.MAE,
			MAPE:         *w.MAPE,
			NPredictions: w.NPredictions,
		})
		return &s, nil
	case w.Message != nil:
		s := models.BacktestUnavailable(*w.Message)
		return &s, nil
	}
	return nil, errors.New("backtest has neither metrics nor message")
}
