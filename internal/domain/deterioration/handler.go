package deterioration

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edtriage/edtriage/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	g.POST("/predict/deterioration", h.Predict)
	g.GET("/predict/rules", h.GetRules)
}

// Predict decodes the body leniently. An empty body scores the default
// snapshot; only a body that is not a JSON object is rejected.
func (h *Handler) Predict(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	req, err := DecodeRequest(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	a, err := h.svc.Assess(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"prediction": a,
	})
}

func (h *Handler) GetRules(c echo.Context) error {
	e := h.svc.Engine()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"rule_set": e.RuleSet(),
		"scale":    e.Scale().Levels(),
	})
}
