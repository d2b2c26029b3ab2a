package console

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huaxi/researchdb/internal/platform/auth"
)

type Handler struct {
	router *Router
}

func NewHandler(router *Router) *Handler {
	return &Handler{router: router}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/console", auth.RequireRole(auth.RoleResearcher))
	g.GET("/menu", h.GetMenu)
	g.GET("/resolve", h.Resolve)
}

func (h *Handler) GetMenu(c echo.Context) error {
	return c.JSON(http.StatusOK, h.router.Menu())
}

func (h *Handler) Resolve(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	return c.JSON(http.StatusOK, h.router.Resolve(path))
}
