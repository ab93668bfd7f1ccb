package services

import (
	"fmt"

	"forecast-dashboard/pkg/models"
)

const (
	// MinBarHeight is the height of the smallest bar, in display units.
	MinBarHeight = 20.0
	// BarHeightSpan is added to MinBarHeight for the largest bar.
	BarHeightSpan = 150.0
	// DetailRowLimit caps the detail table under the chart.
	DetailRowLimit = 14

	NoForecastDataMessage = "No forecast data. Load data and train the model first."
	missingCell           = "-"
)

// ChartBar is one rendered forecast point.
type ChartBar struct {
	Date     string  `json:"date"`
	Quantity float64 `json:"quantity"`
	Height   float64 `json:"height"`
	Tooltip  string  `json:"tooltip"`
}

// ChartRow is one line of the detail table.
type ChartRow struct {
	Date     string `json:"date"`
	Quantity string `json:"quantity"`
	Revenue  string `json:"revenue"`
	Interval string `json:"interval,omitempty"`
}

// ChartView is the display-ready form of a ForecastSeries.
type ChartView struct {
	Empty        bool       `json:"empty"`
	Message      string     `json:"message,omitempty"`
	ProductID    string     `json:"product_id,omitempty"`
	ModelVersion string     `json:"model_version,omitempty"`
	FirstDate    string     `json:"first_date,omitempty"`
	LastDate     string     `json:"last_date,omitempty"`
	MinQuantity  float64    `json:"min_quantity"`
	MaxQuantity  float64    `json:"max_quantity"`
	Bars         []ChartBar `json:"bars"`
	Rows         []ChartRow `json:"rows"`
}

// NormalizeChart scales quantities into bar heights between MinBarHeight and
// MinBarHeight+BarHeightSpan. A series without points yields the no-data
// view; a nil series (nothing fetched yet) yields an empty view with no message.
func NormalizeChart(series *models.ForecastSeries) ChartView {
	if series == nil {
		return ChartView{Empty: true, Bars: []ChartBar{}, Rows: []ChartRow{}}
	}
	if len(series.Points) == 0 {
		return ChartView{Empty: true, Message: NoForecastDataMessage, ProductID: series.ProductID, Bars: []ChartBar{}, Rows: []ChartRow{}}
	}

	points := series.Points
	minQty, maxQty := points[0].PredictedQuantity, points[0].PredictedQuantity
	for _, p := range points[1:] {
		if p.PredictedQuantity < minQty {
			minQty = p.PredictedQuantity
		}
		if p.PredictedQuantity > maxQty {
			maxQty = p.PredictedQuantity
		}
	}
	span := maxQty - minQty
	if span < 1 {
		span = 1
	}

	view := ChartView{
		ProductID:    series.ProductID,
		ModelVersion: series.ModelVersion,
		FirstDate:    points[0].Date.String(),
		LastDate:     points[len(points)-1].Date.String(),
		MinQuantity:  minQty,
		MaxQuantity:  maxQty,
		Bars:         make([]ChartBar, len(points)),
	}
	for i, p := range points {
		date := p.Date.String()
		view.Bars[i] = ChartBar{
			Date:     date,
			Quantity: p.PredictedQuantity,
			Height:   (p.PredictedQuantity-minQty)/span*BarHeightSpan + MinBarHeight,
			Tooltip:  fmt.Sprintf("%s: %.1f", date, p.PredictedQuantity),
		}
	}

	n := min(len(points), DetailRowLimit)
	view.Rows = make([]ChartRow, n)
	for i, p := range points[:n] {
		view.Rows[i] = detailRow(p)
	}
	return view
}

func detailRow(p models.ForecastPoint) ChartRow {
	row := ChartRow{
		Date:     p.Date.String(),
		Quantity: fmt.Sprintf("%.1f", p.PredictedQuantity),
		Revenue:  missingCell,
	}
	if p.PredictedRevenue != nil {
		row.Revenue = fmt.Sprintf("%.2f", *p.PredictedRevenue)
	}
	if p.ConfidenceLower != nil && p.ConfidenceUpper != nil {
		row.Interval = fmt.Sprintf("%.1f - %.1f", *p.ConfidenceLower, *p.ConfidenceUpper)
	}
	return row
}

// DescribeBacktest renders a summary line for the forecast header. A nil
// summary (still loading) renders as the empty string.
func DescribeBacktest(b *models.BacktestSummary) string {
	if b == nil {
		return ""
	}
	if !b.Available() {
		return b.Message
	}
	n := missingCell
	if b.Metrics.NPredictions != nil {
		n = fmt.Sprintf("%d", *b.Metrics.NPredictions)
	}
	return fmt.Sprintf("MAE: %.1f | MAPE: %.1f%% | predictions: %s", b.Metrics.MAE, b.Metrics.MAPE, n)
}
