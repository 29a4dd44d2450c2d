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
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
)

type GroupMembership interface {
	AddMember(groupId, userId string) error
	RemoveMember(groupId, userId string) error
	MembersCount(groupId string) (uint64, error)
	ListMembers(groupId string, limit *uint64, cursor *string) ([]string, string, error)
}

// NewAddGroupMemberHandler enrolls a user into a group. Joining twice
// is a conflict, not an upsert.
func NewAddGroupMemberHandler(groups GroupMembership) echo.HandlerFunc {
	if groups == nil {
		panic("add group member handler called with nil membership")
	}

	return func(c echo.Context) error {
		var ev event.GroupMemberEvent
		if err := c.Bind(&ev); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if strings.TrimSpace(ev.UserId) == "" {
			return domain.ErrEmptyInput
		}

		if err := groups.AddMember(c.Param("id"), ev.UserId); err != nil {
			return err
		}
		return accepted(c)
	}
}

func NewRemoveGroupMemberHandler(groups GroupMembership) echo.HandlerFunc {
	if groups == nil {
		panic("remove group member handler called with nil membership")
	}

	return func(c echo.Context) error {
		if err := groups.RemoveMember(c.Param("id"), c.Param("userId")); err != nil {
			return err
		}
		return accepted(c)
	}
}

// NewListGroupMembersHandler pages through a group's member ids. The
// total rides along so clients don't have to walk the whole cursor
// chain just to show a count.
func NewListGroupMembersHandler(groups GroupMembership) echo.HandlerFunc {
	if groups == nil {
		panic("list group members handler called with nil membership")
	}

	return func(c echo.Context) error {
		limit, cursor := pageParams(c)

		members, nextCursor, err := groups.ListMembers(c.Param("id"), limit, cursor)
		if err != nil {
			return err
		}
		total, err := groups.MembersCount(c.Param("id"))
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, event.GroupMembersResponse{
			Cursor:  nextCursor,
			Total:   total,
			Members: members,
		})
	}
}
