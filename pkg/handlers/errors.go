package handlers

import (
	"errors"
	"net/http"

	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/models"

	"github.com/gin-gonic/gin"
)

var errViewNotFound = errors.New("view not found")

// errorStatus maps the client error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	var se *forecastapi.ServerError
	switch {
	case errors.Is(err, errViewNotFound):
		return http.StatusNotFound
	case errors.Is(err, forecastapi.ErrSubmissionPending):
		return http.StatusConflict
	case forecastapi.IsPrecondition(err),
		errors.Is(err, models.ErrEmptyProductID),
		errors.Is(err, models.ErrInvertedRange):
		return http.StatusBadRequest
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{
		"error": err.Error(),
		"class": forecastapi.ErrorClass(err),
	})
}
