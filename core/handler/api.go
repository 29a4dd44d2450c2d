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

// Package handler exposes every warden operation over HTTP. Handlers are
// closure factories over small consumer-side interfaces, so tests feed
// them fakes and the server feeds them the real services.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/database"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	log "github.com/sirupsen/logrus"
)

// UserIdHeader carries the acting user's identity when it is not in the
// query string. The gateway uses the same convention.
const UserIdHeader = "X-User-Id"

// ErrorHandler is the echo error handler: domain errors keep their
// taxonomy and map onto stable status codes, everything unknown is a 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusOf(err)
	message := err.Error()

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = fmt.Sprintf("%v", httpErr.Message)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if err := c.JSON(status, event.ErrorEvent{Code: status, Message: message}); err != nil {
		log.Errorf("handler: error response: %v", err)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrLocalAddr),
		errors.Is(err, domain.ErrSelfSeal):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrGroupNotFound),
		errors.Is(err, database.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySealed),
		errors.Is(err, domain.ErrAllAlreadySealed),
		errors.Is(err, database.ErrMemberExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTokenFetch),
		errors.Is(err, domain.ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requesterId resolves the acting user from the query string or header.
func requesterId(c echo.Context) string {
	userId := strings.TrimSpace(c.QueryParam("user_id"))
	if userId == "" {
		userId = strings.TrimSpace(c.Request().Header.Get(UserIdHeader))
	}
	return userId
}

// pageParams reads the shared cursor pagination query parameters.
func pageParams(c echo.Context) (limit *uint64, cursor *string) {
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil && parsed > 0 {
			limit = &parsed
		}
	}
	if raw := strings.TrimSpace(c.QueryParam("cursor")); raw != "" {
		cursor = &raw
	}
	return limit, cursor
}

func accepted(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, []byte(event.Accepted))
}
