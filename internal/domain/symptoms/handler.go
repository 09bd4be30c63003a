package symptoms

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/edtriage/edtriage/internal/platform/auth"
)

type Handler struct {
	extractor *Extractor
}

func NewHandler(x *Extractor) *Handler {
	return &Handler{extractor: x}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	g.POST("/nlp/extract", h.Extract)
}

type extractRequest struct {
	Text           string `json:"text"`
	ChiefComplaint string `json:"chiefComplaint"`
}

func (h *Handler) Extract(c echo.Context) error {
	var req extractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	text := req.Text
	if text == "" {
		text = req.ChiefComplaint
	}
	if strings.TrimSpace(text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "No text provided")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"extraction": h.extractor.Extract(text),
	})
}
