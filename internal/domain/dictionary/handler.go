package dictionary

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huaxi/researchdb/internal/platform/auth"
	"github.com/huaxi/researchdb/pkg/pagination"
)

type Handler struct {
	src Source
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dictionary", auth.RequireRole(auth.RoleResearcher))
	g.GET("/fields", h.ListSearchFields)
	g.GET("/departments", h.ListDepartments)
	g.GET("/hotspots", h.ListHotspots)
	g.GET("/categories", h.ListCategories)
	g.GET("/categories/:id/fields", h.ListCategoryFields)
	g.GET("/indicators", h.ListIndicators)
}

func (h *Handler) ListSearchFields(c echo.Context) error {
	fields, err := h.src.FetchFieldDictionary(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, fields)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	depts, err := h.src.FetchDepartments(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, depts)
}

func (h *Handler) ListHotspots(c echo.Context) error {
	hotspots, err := h.src.FetchResearchHotspots(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, hotspots)
}

func (h *Handler) ListCategories(c echo.Context) error {
	cats, err := h.src.FetchCategories(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *Handler) ListCategoryFields(c echo.Context) error {
	fields, err := h.src.FetchCategoryFields(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "category not found")
		}
		return upstreamError(err)
	}
	p := pagination.FromContext(c)
	start, end := p.Window(len(fields))
	return c.JSON(http.StatusOK, pagination.NewResponse(fields[start:end], len(fields), p.Limit, p.Offset))
}

func (h *Handler) ListIndicators(c echo.Context) error {
	inds, err := h.src.FetchIndicators(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, inds)
}

func upstreamError(err error) error {
	return echo.NewHTTPError(http.StatusBadGateway, "dictionary unavailable").SetInternal(err)
}
