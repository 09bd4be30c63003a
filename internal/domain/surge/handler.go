package surge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edtriage/edtriage/internal/platform/auth"
)

// MaxHoursAhead bounds a single forecast request to one week.
const MaxHoursAhead = 168

type Handler struct {
	svc          *Service
	defaultHours int
}

func NewHandler(svc *Service, defaultHours int) *Handler {
	return &Handler{svc: svc, defaultHours: defaultHours}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole("admin", "physician", "nurse", "government"))
	clinical.POST("/forecast/surge", h.ForecastSurge)
	clinical.GET("/hospitals/:id/surge-forecast", h.ForecastHospital, auth.RequireHospitalScope("id"))

	oversight := api.Group("", auth.RequireRole("admin", "government"))
	oversight.GET("/surge/overview", h.Overview)
}

type forecastRequest struct {
	HospitalID     json.RawMessage `json:"hospitalId"`
	HoursAhead     json.RawMessage `json:"hoursAhead"`
	HistoricalData json.RawMessage `json:"historicalData"`
}

func (h *Handler) ForecastSurge(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}
	var req forecastRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	hours, err := hoursField(req.HoursAhead, h.defaultHours)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var (
		samples []Sample
		skipped int
	)
	if len(req.HistoricalData) > 0 && string(req.HistoricalData) != "null" {
		samples, skipped, err = DecodeSamples(req.HistoricalData, h.svc.Forecaster().Location())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "historicalData must be an array")
		}
	}

	f := h.svc.Forecast(rawID(req.HospitalID), samples, hours)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"forecast": f,
		// Undecodable entries are dropped and may leave too few samples
		// for the data path.
		"skipped_samples": skipped,
	})
}

// hoursField reads hoursAhead from a body. Anything that is not a JSON
// number keeps the default; a number must be whole.
func hoursField(raw json.RawMessage, def int) (int, error) {
	var v float64
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
		return def, nil
	}
	if v != math.Trunc(v) {
		return 0, errors.New("hoursAhead must be a whole number")
	}
	if v < 0 || v > MaxHoursAhead {
		return 0, fmt.Errorf("hoursAhead must be between 0 and %d", MaxHoursAhead)
	}
	return int(v), nil
}

func (h *Handler) ForecastHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hours, err := h.hoursParam(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.ForecastHospital(c.Request().Context(), id, hours)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"forecast": f,
	})
}

func (h *Handler) Overview(c echo.Context) error {
	hours, err := h.hoursParam(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, err := h.svc.Overview(c.Request().Context(), hours)
	if err != nil {
		return mapError(err)
	}
	surges := 0
	for _, it := range items {
		if it.Forecast.SurgeDetected {
			surges++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"hospitals": items,
		"total":     len(items),
		"surges":    surges,
	})
}

func (h *Handler) hoursParam(c echo.Context) (int, error) {
	raw := c.QueryParam("hours")
	if raw == "" {
		return h.defaultHours, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("hours must be a whole number")
	}
	return n, validateHours(n)
}

func validateHours(n int) error {
	if n < 0 || n > MaxHoursAhead {
		return fmt.Errorf("hoursAhead must be between 0 and %d", MaxHoursAhead)
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrHospitalNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	case errors.Is(err, ErrHistoryUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// rawID accepts a string or numeric hospital id.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}
