package patient

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huaxi/researchdb/internal/platform/auth"
)

type Handler struct {
	overview OverviewSource
}

func NewHandler(overview OverviewSource) *Handler {
	return &Handler{overview: overview}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/overview", h.GetOverview, auth.RequireRole(auth.RoleResearcher))
}

func (h *Handler) GetOverview(c echo.Context) error {
	o, err := h.overview.Overview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "overview unavailable").SetInternal(err)
	}
	return c.JSON(http.StatusOK, o)
}
