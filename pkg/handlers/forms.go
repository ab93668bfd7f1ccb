package handlers

import (
	"strings"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"
)

// queryForm carries a full or partial forecast query from a form or JSON body.
type queryForm struct {
	ProductID string `form:"product_id" json:"product_id"`
	FromDate  string `form:"from_date" json:"from_date"`
	ToDate    string `form:"to_date" json:"to_date"`
}

// merge overlays the non-empty fields onto base.
func (f queryForm) merge(base models.ForecastQuery) (models.ForecastQuery, error) {
	q := base
	if p := strings.TrimSpace(f.ProductID); p != "" {
		q.ProductID = p
	}
	if f.FromDate != "" {
		d, err := models.ParseDate(f.FromDate)
		if err != nil {
			return base, &forecastapi.PreconditionError{Op: "from date", Err: err}
		}
		q.FromDate = d
	}
	if f.ToDate != "" {
		d, err := models.ParseDate(f.ToDate)
		if err != nil {
			return base, &forecastapi.PreconditionError{Op: "to date", Err: err}
		}
		q.ToDate = d
	}
	return q, nil
}

// submitForm is an assistant question, optionally switching the chat provider.
type submitForm struct {
	Input    string `form:"input" json:"input"`
	Provider string `form:"provider" json:"provider"`
	Key      string `form:"key" json:"key"`
}

func (f submitForm) provider() (models.Provider, bool, error) {
	if strings.TrimSpace(f.Provider) == "" {
		return "", false, nil
	}
	p, err := models.ParseProvider(f.Provider)
	if err != nil {
		return "", false, &forecastapi.PreconditionError{Op: "provider", Err: err}
	}
	return p, true, nil
}
