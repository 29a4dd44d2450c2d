/*

Warden - Lumichat Moderation Backend
Copyright (C) 2025 Lumichat Authors, https://github.com/lumichat

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

Warden is provided “as is” without warranty of any kind, either expressed or implied.
Use at your own risk. The maintainers shall not be liable for any damages or data loss
resulting from the use or misuse of this software.
*/

// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
)

// Logging times every request and recovers handler panics. The error is
// materialized before logging so the recorded status is the one the
// client saw.
func Logging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("middleware: panic: %v %s", r, debug.Stack())
				c.Error(echo.NewHTTPError(http.StatusInternalServerError))
				err = nil
			}
		}()

		before := time.Now()
		err = next(c)
		if err != nil {
			c.Error(err)
		}

		log.Debugf("middleware: %s %s from %s: %d, elapsed: %s",
			c.Request().Method,
			c.Request().RequestURI,
			c.RealIP(),
			c.Response().Status,
			time.Since(before).String(),
		)
		return err
	}
}

// Metrics observes request latency per method, route pattern and status.
func Metrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		before := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.WithLabelValues(
			c.Request().Method, route, strconv.Itoa(c.Response().Status),
		).Observe(time.Since(before).Seconds())
		return err
	}
}
