package patient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandler_GetOverview(t *testing.T) {
	h := NewHandler(NewSynthetic())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := h.GetOverview(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var o Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatal(err)
	}
	if o.TotalPatients != 15890 {
		t.Errorf("unexpected overview %+v", o)
	}
}

type brokenOverview struct{}

func (brokenOverview) Overview(context.Context) (Overview, error) {
	return Overview{}, errors.New("db down")
}

func TestHandler_GetOverview_Failure(t *testing.T) {
	h := NewHandler(brokenOverview{})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h.GetOverview(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %v", err)
	}
}
