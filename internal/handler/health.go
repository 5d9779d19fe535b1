// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Counter reports how many challenges are pending.
type Counter interface {
	Count() int
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	challenges Counter
	fonts      int
}

// NewHealthHandler creates a new HealthHandler. challenges may be nil.
func NewHealthHandler(challenges Counter, fonts int) *HealthHandler {
	return &HealthHandler{
		challenges: challenges,
		fonts:      fonts,
	}
}

// Check returns the health status of the server.
func (h *HealthHandler) Check(c echo.Context) error {
	resp := map[string]interface{}{
		"status": "ok",
		"fonts":  h.fonts,
	}
	if h.challenges != nil {
		resp["challenges"] = h.challenges.Count()
	}
	return c.JSON(http.StatusOK, resp)
}
