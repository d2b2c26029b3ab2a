package topic

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huaxi/researchdb/internal/platform/auth"
)

// Editors resolves the caller's topic editor from the request context.
type Editors interface {
	Editor(ctx context.Context) (*Editor, error)
}

type Handler struct {
	svc     *Service
	editors Editors
}

func NewHandler(svc *Service, editors Editors) *Handler {
	return &Handler{svc: svc, editors: editors}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/topics", auth.RequireRole(auth.RoleResearcher))
	g.GET("", h.ListTopics)
	g.GET("/:id", h.GetTopic)
	g.POST("/:id/copy", h.CopyTopic)
	g.DELETE("/:id", h.DeleteTopic)
	g.POST("/:id/recommend", h.ToggleRecommended, auth.RequireRole(auth.RoleAdmin))

	ed := api.Group("/topic-editor", auth.RequireRole(auth.RoleResearcher))
	ed.GET("", h.GetEditorState)
	ed.POST("/new", h.OpenNew)
	ed.POST("/edit/:id", h.OpenEdit)
	ed.POST("/cancel", h.Cancel)
	ed.POST("/indicators", h.SelectIndicator)
	ed.PATCH("/indicators/:id", h.UpdateIndicatorRange)
	ed.DELETE("/indicators/:id", h.RemoveIndicator)
	ed.DELETE("/indicators", h.ClearIndicators)
	ed.POST("/flow-graph", h.GenerateFlowGraph)
	ed.POST("/save", h.Save)
}

// -- Topics --

func (h *Handler) ListTopics(c echo.Context) error {
	topics, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, topics)
}

func (h *Handler) GetTopic(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CopyTopic(c echo.Context) error {
	t, err := h.svc.Copy(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ToggleRecommended(c echo.Context) error {
	t, err := h.svc.ToggleRecommended(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTopic(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Editor --

func (h *Handler) editor(c echo.Context) (*Editor, error) {
	ed, err := h.editors.Editor(c.Request().Context())
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "workspace unavailable").SetInternal(err)
	}
	return ed, nil
}

func (h *Handler) GetEditorState(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ed.Snapshot())
}

func (h *Handler) OpenNew(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	if err := ed.OpenNew(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ed.Snapshot())
}

func (h *Handler) OpenEdit(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	if err := h.svc.OpenEdit(c.Request().Context(), ed, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ed.Snapshot())
}

func (h *Handler) Cancel(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	if err := ed.Cancel(); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ed.Snapshot())
}

func (h *Handler) SelectIndicator(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	var body struct {
		IndicatorID string `json:"indicatorId"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.IndicatorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "indicatorId is required")
	}
	r, err := ed.SelectIndicator(body.IndicatorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateIndicatorRange(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	var upd RangeUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := ed.UpdateIndicatorRange(c.Param("id"), upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) RemoveIndicator(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	if err := ed.RemoveIndicator(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClearIndicators(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	if err := ed.ClearIndicators(); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GenerateFlowGraph(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	g, err := ed.GenerateFlowGraph(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) Save(c echo.Context) error {
	ed, err := h.editor(c)
	if err != nil {
		return err
	}
	var form TopicForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	creating := ed.Snapshot().Mode == ModeNew
	t, err := h.svc.Save(c.Request().Context(), ed, form)
	if err != nil {
		return httpError(err)
	}
	if creating {
		return c.JSON(http.StatusCreated, t)
	}
	return c.JSON(http.StatusOK, t)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrTopicNotFound), errors.Is(err, ErrIndicatorNotSelected):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownIndicator), errors.Is(err, ErrInvalidRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrNameTooLong),
		errors.Is(err, ErrDescriptionTooLong),
		errors.Is(err, ErrTooFewIndicators),
		errors.Is(err, ErrIncompleteRange):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrDuplicateIndicator),
		errors.Is(err, ErrNotEditing),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrFlowGraphDiscarded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAnalyzerFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "flow analysis failed").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
