package services

import (
	"testing"

	"forecast-dashboard/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChartEmpty(t *testing.T) {
	view := NormalizeChart(&models.ForecastSeries{ProductID: "P001", Points: []models.ForecastPoint{}})
	assert.True(t, view.Empty)
	assert.Equal(t, NoForecastDataMessage, view.Message)
	assert.Equal(t, "P001", view.ProductID)
	assert.Empty(t, view.Bars)
	assert.Empty(t, view.Rows)
}

func TestNormalizeChartNotFetched(t *testing.T) {
	view := NormalizeChart(nil)
	assert.True(t, view.Empty)
	assert.Empty(t, view.Message, "no series yet is not the same as a series without points")
	assert.NotNil(t, view.Bars)
	assert.NotNil(t, view.Rows)
}

func TestNormalizeChartHeights(t *testing.T) {
	qty := []float64{7, 3, 12, 3, 9.5}
	series := &models.ForecastSeries{ProductID: "P002"}
	for i, q := range qty {
		series.Points = append(series.Points, models.ForecastPoint{Date: june1.AddDays(i), PredictedQuantity: q})
	}

	view := NormalizeChart(series)
	require.Len(t, view.Bars, len(qty))
	assert.Equal(t, 3.0, view.MinQuantity)
	assert.Equal(t, 12.0, view.MaxQuantity)

	for i, bar := range view.Bars {
		assert.Equal(t, qty[i], bar.Quantity, "order preserved")
		assert.GreaterOrEqual(t, bar.Height, MinBarHeight)
		assert.LessOrEqual(t, bar.Height, MinBarHeight+BarHeightSpan)
		for j, other := range view.Bars {
			if qty[j] <= qty[i] {
				assert.GreaterOrEqual(t, bar.Height, other.Height)
			}
		}
	}
	assert.Equal(t, MinBarHeight, view.Bars[1].Height)
	assert.Equal(t, MinBarHeight+BarHeightSpan, view.Bars[2].Height)
	assert.Equal(t, "2023-06-03: 12.0", view.Bars[2].Tooltip)
}

func TestNormalizeChartEqualQuantities(t *testing.T) {
	view := NormalizeChart(linearSeries("P001", june1, 6, 42, 42))
	for _, bar := range view.Bars {
		assert.Equal(t, MinBarHeight, bar.Height)
	}
}

func TestNormalizeChartNarrowRangeFloorsAtOne(t *testing.T) {
	view := NormalizeChart(linearSeries("P001", june1, 2, 10, 10.5))
	assert.Equal(t, MinBarHeight, view.Bars[0].Height)
	assert.InDelta(t, MinBarHeight+75, view.Bars[1].Height, 1e-9)
}

func TestNormalizeChartDetailRows(t *testing.T) {
	series := linearSeries("P001", june1, 3, 1, 3)
	series.Points[1].PredictedRevenue = nil
	series.Points[2].ConfidenceLower = floatPtr(2.5)
	series.Points[2].ConfidenceUpper = floatPtr(3.5)

	view := NormalizeChart(series)
	require.Len(t, view.Rows, 3)
	assert.Equal(t, ChartRow{Date: "2023-06-01", Quantity: "1.0", Revenue: "100.00"}, view.Rows[0])
	assert.Equal(t, "-", view.Rows[1].Revenue)
	assert.Equal(t, "2.5 - 3.5", view.Rows[2].Interval)
	assert.Equal(t, "2023-06-01", view.FirstDate)
	assert.Equal(t, "2023-06-03", view.LastDate)
}

func TestDescribeBacktest(t *testing.T) {
	n := 30
	assert.Equal(t, "", DescribeBacktest(nil))

	unavailable := models.BacktestUnavailable(BacktestUnavailableMessage)
	assert.Equal(t, BacktestUnavailableMessage, DescribeBacktest(&unavailable))

	available := models.BacktestAvailable(models.BacktestMetrics{MAE: 2.04, MAPE: 11.96, NPredictions: &n})
	assert.Equal(t, "MAE: 2.0 | MAPE: 12.0% | predictions: 30", DescribeBacktest(&available))
}
