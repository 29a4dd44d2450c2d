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

package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
)

type EmoticonProvider interface {
	Emoticons(ctx context.Context, originOverride string) (string, []domain.Emoticon, error)
}

func NewGetEmoticonsHandler(scraper EmoticonProvider) echo.HandlerFunc {
	if scraper == nil {
		panic("emoticons handler called with nil scraper")
	}

	return func(c echo.Context) error {
		origin, emoticons, err := scraper.Emoticons(c.Request().Context(), c.QueryParam("origin"))
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, event.EmoticonsResponse{
			Origin:    origin,
			Emoticons: emoticons,
		})
	}
}
