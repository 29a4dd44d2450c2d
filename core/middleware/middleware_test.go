// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLoggingRecoversPanic(t *testing.T) {
	e := echo.New()
	e.Use(Logging)
	e.GET("/boom", func(c echo.Context) error { panic("boom") })

	rec := serve(e, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingMaterializesHandlerError(t *testing.T) {
	e := echo.New()
	e.Use(Logging)
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	rec := serve(e, "/fail")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLoggingPassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(Logging)
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := serve(e, "/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsObservesRoutePattern(t *testing.T) {
	e := echo.New()
	e.Use(Metrics)
	e.GET("/things/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	serve(e, "/things/42")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// the route label is the pattern, not the raw path
	assert.Contains(t, rec.Body.String(),
		`warden_http_request_duration_seconds_count{method="GET",route="/things/:id",status="204"} 1`)
}
