package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes the alert history to coordinators.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

// RegisterRoutes mounts the alert endpoints on g; access control is the
// caller's responsibility.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/alerts", h.HandleList)
	g.GET("/alerts/stats", h.HandleStats)
	g.GET("/alerts/:id", h.HandleGet)
	g.POST("/alerts/:id/retry", h.HandleRetry)
}

func (h *Handler) HandleList(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": h.dispatcher.Recent(limit),
	})
}

func (h *Handler) HandleGet(c echo.Context) error {
	a, err := h.dispatcher.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) HandleRetry(c echo.Context) error {
	a, err := h.dispatcher.Retry(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrAlertNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNothingToRetry):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return c.JSON(http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "alert": a})
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.dispatcher.Stats())
}
