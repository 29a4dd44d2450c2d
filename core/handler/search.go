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
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
)

type UserDirectory interface {
	Get(userId string) (domain.User, error)
	SearchByName(query string, limit *uint64, cursor *string) ([]domain.User, string, error)
}

type GroupDirectory interface {
	Get(groupId string) (domain.Group, error)
	SearchByName(query string, limit *uint64, cursor *string) ([]domain.Group, string, error)
}

type PresenceReader interface {
	IsOnline(userId domain.ID) bool
}

type SealReader interface {
	IsUserSealed(userId domain.ID) bool
}

// NewSearchUsersHandler searches the directory by name prefix. Each hit
// is decorated with its live seal and presence state.
func NewSearchUsersHandler(users UserDirectory, seals SealReader, presence PresenceReader) echo.HandlerFunc {
	if users == nil || seals == nil || presence == nil {
		panic("search users handler called with nil dependencies")
	}

	return func(c echo.Context) error {
		limit, cursor := pageParams(c)

		found, nextCursor, err := users.SearchByName(c.QueryParam("query"), limit, cursor)
		if err != nil {
			return err
		}

		for i := range found {
			found[i].IsSealed = seals.IsUserSealed(found[i].Id)
			found[i].IsOnline = presence.IsOnline(found[i].Id)
		}

		return c.JSON(http.StatusOK, event.UsersResponse{
			Cursor: nextCursor,
			Users:  found,
		})
	}
}

// NewGetUserHandler resolves a single user by id, decorated the same
// way the search results are.
func NewGetUserHandler(users UserDirectory, seals SealReader, presence PresenceReader) echo.HandlerFunc {
	if users == nil || seals == nil || presence == nil {
		panic("get user handler called with nil dependencies")
	}

	return func(c echo.Context) error {
		user, err := users.Get(c.Param("id"))
		if err != nil {
			return err
		}
		user.IsSealed = seals.IsUserSealed(user.Id)
		user.IsOnline = presence.IsOnline(user.Id)

		return c.JSON(http.StatusOK, user)
	}
}

func NewSearchGroupsHandler(groups GroupDirectory) echo.HandlerFunc {
	if groups == nil {
		panic("search groups handler called with nil directory")
	}

	return func(c echo.Context) error {
		limit, cursor := pageParams(c)

		found, nextCursor, err := groups.SearchByName(c.QueryParam("query"), limit, cursor)
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, event.GroupsResponse{
			Cursor: nextCursor,
			Groups: found,
		})
	}
}

func NewGetGroupHandler(groups GroupDirectory) echo.HandlerFunc {
	if groups == nil {
		panic("get group handler called with nil directory")
	}

	return func(c echo.Context) error {
		group, err := groups.Get(c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, group)
	}
}
