package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout_CompletesWithinDeadline(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/care-plans/c1/wizard", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	}

	h := RequestTimeout(5*time.Second, nil)(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestTimeout_ReturnsTimeoutOnExpiry(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/care-plans/c1/wizard", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	release := make(chan struct{})
	defer close(release)
	handler := func(c echo.Context) error {
		<-release
		return nil
	}

	h := RequestTimeout(50*time.Millisecond, nil)(handler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected a message")
	}
}

func TestRequestTimeout_Skip(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/care-plans/c1/wizard/advance", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); ok {
			t.Error("expected no deadline on skipped request")
		}
		return c.NoContent(http.StatusOK)
	}
	skip := func(c echo.Context) bool { return strings.HasSuffix(c.Request().URL.Path, "/advance") }

	if err := RequestTimeout(time.Millisecond, skip)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
