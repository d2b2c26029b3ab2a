package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/huaxi/researchdb/internal/domain/dictionary"
	"github.com/huaxi/researchdb/internal/domain/patient"
	"github.com/huaxi/researchdb/internal/platform/auth"
)

// Workspaces resolves the caller's search models from the request context.
type Workspaces interface {
	Conditions(ctx context.Context) (*ConditionModel, error)
	Simple(ctx context.Context) (*SimpleModel, error)
}

type Handler struct {
	ws Workspaces
}

func NewHandler(ws Workspaces) *Handler {
	return &Handler{ws: ws}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/search", auth.RequireRole(auth.RoleResearcher))

	cond := g.Group("/condition")
	cond.GET("", h.GetConditionState)
	cond.GET("/fields", h.ListConditionFields)
	cond.POST("/conditions", h.AddCondition)
	cond.PATCH("/conditions/:id", h.UpdateCondition)
	cond.DELETE("/conditions/:id", h.RemoveCondition)
	cond.PUT("/logic", h.SetLogic)
	cond.POST("/run", h.RunConditionSearch)
	cond.POST("/reset", h.ResetConditions)
	cond.GET("/export", h.ExportConditionResults)

	simple := g.Group("/simple")
	simple.GET("", h.GetSimpleState)
	simple.PATCH("/filters", h.SetSimpleFilters)
	simple.POST("/departments/:id/toggle", h.ToggleDepartment)
	simple.POST("/hotspots/:hotspot/inclusion/:criterion/toggle", h.ToggleInclusion)
	simple.POST("/hotspots/:hotspot/exclusion/:criterion/toggle", h.ToggleExclusion)
	simple.POST("/run", h.RunSimpleSearch)
	simple.POST("/reset", h.ResetSimple)
	simple.GET("/export", h.ExportSimpleResults)
}

type pageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// -- Condition search --

func (h *Handler) conditions(c echo.Context) (*ConditionModel, error) {
	m, err := h.ws.Conditions(c.Request().Context())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "workspace unavailable").SetInternal(err)
	}
	return m, nil
}

func (h *Handler) GetConditionState(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ListConditionFields(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m.Fields())
}

func (h *Handler) AddCondition(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m.AddCondition())
}

func (h *Handler) UpdateCondition(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	var upd ConditionUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := m.UpdateCondition(c.Param("id"), upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) RemoveCondition(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	m.RemoveCondition(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetLogic(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	var body struct {
		Logic string `json:"logic"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l, err := patient.ParseLogic(body.Logic)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := m.SetLogic(l); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) RunConditionSearch(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	var req pageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := m.Search(c.Request().Context(), req.Page, req.PageSize); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ResetConditions(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	m.Reset()
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ExportConditionResults(c echo.Context) error {
	m, err := h.conditions(c)
	if err != nil {
		return err
	}
	return sendXLSX(c, "condition-search", m.Snapshot().Patients)
}

// -- Simple search --

func (h *Handler) simple(c echo.Context) (*SimpleModel, error) {
	m, err := h.ws.Simple(c.Request().Context())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "workspace unavailable").SetInternal(err)
	}
	return m, nil
}

func (h *Handler) GetSimpleState(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) SetSimpleFilters(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	var f SimpleFilters
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := m.SetFilters(f); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ToggleDepartment(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	if err := m.ToggleDepartment(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ToggleInclusion(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	if err := m.ToggleInclusionCriterion(c.Param("hotspot"), c.Param("criterion")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ToggleExclusion(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	if err := m.ToggleExclusionCriterion(c.Param("hotspot"), c.Param("criterion")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) RunSimpleSearch(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	var req pageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := m.Search(c.Request().Context(), req.Page, req.PageSize); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ResetSimple(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	m.Reset()
	return c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) ExportSimpleResults(c echo.Context) error {
	m, err := h.simple(c)
	if err != nil {
		return err
	}
	return sendXLSX(c, "simple-search", m.Snapshot().Patients)
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func sendXLSX(c echo.Context, name string, records []patient.Record) error {
	data, err := patient.ExportXLSX(records)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed").SetInternal(err)
	}
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().UTC().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxMIME, data)
}

// httpError maps model errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNoConditions), errors.Is(err, ErrEmptyKeyword):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConditionNotFound),
		errors.Is(err, ErrUnknownDepartment),
		errors.Is(err, ErrUnknownHotspot),
		errors.Is(err, ErrUnknownCriterion):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrOperatorNotAllowed),
		errors.Is(err, ErrInvalidFilter),
		errors.Is(err, dictionary.ErrInvalidValue):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSuperseded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrFetchFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "patient search failed").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
