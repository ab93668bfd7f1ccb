package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	forecastSheet = "Forecast"
	summarySheet  = "Summary"
)

// ExportForecastWorkbook writes the dashboard snapshot and the scenario outcome
// as an XLSX workbook: one row per forecast point plus a summary sheet.
func ExportForecastWorkbook(state DashboardState, scenario ScenarioSnapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), forecastSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(forecastSheet, "A1", &[]any{
		"date", "predicted_quantity", "predicted_revenue", "confidence_lower", "confidence_upper",
	}); err != nil {
		return nil, err
	}
	if state.Series != nil {
		for i, p := range state.Series.Points {
			row := []any{p.Date.String(), p.PredictedQuantity, optionalCell(p.PredictedRevenue),
				optionalCell(p.ConfidenceLower), optionalCell(p.ConfidenceUpper)}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(forecastSheet, cell, &row); err != nil {
				return nil, err
			}
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	chart := state.Chart()
	summary := [][]any{
		{"product_id", state.Query.ProductID},
		{"from_date", state.Query.FromDate.String()},
		{"to_date", state.Query.ToDate.String()},
		{"model_version", chart.ModelVersion},
		{"points", len(chart.Bars)},
		{"backtest", state.BacktestLine()},
		{"scenario_price_delta", scenario.PriceLabel},
	}
	if scenario.Display != nil {
		summary = append(summary,
			[]any{"scenario_revenue", scenario.Display.Revenue},
			[]any{"scenario_quantity", scenario.Display.Quantity},
		)
	}
	if state.Error != "" {
		summary = append(summary, []any{"error", state.Error})
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
