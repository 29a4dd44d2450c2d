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
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	log "github.com/sirupsen/logrus"
)

const sealedNoticeReason = "account sealed by moderation"

type UserSealer interface {
	SealUser(username string) (domain.User, error)
	SealedUntil(userId domain.ID) (time.Time, bool)
}

type AddrSealer interface {
	SealAddr(addr, requesterAddr string) error
}

type BulkSealer interface {
	SealUserAddrs(userId domain.ID, requesterAddr string) (sealed, total int, err error)
}

type SealLister interface {
	SealedList() ([]domain.SealRecord, error)
}

// SealedNotifier pushes the sealed notice to the user's live sockets
// and closes them.
type SealedNotifier interface {
	DropUser(userId domain.ID, notice event.SealedNoticeBody) int
}

// NewSealUserHandler seals a user by username. The sealed user's live
// sockets get the notice pushed and are dropped.
func NewSealUserHandler(svc UserSealer, sockets SealedNotifier) echo.HandlerFunc {
	if svc == nil || sockets == nil {
		panic("seal user handler called with nil dependencies")
	}

	return func(c echo.Context) error {
		var ev event.SealUserEvent
		if err := c.Bind(&ev); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		user, err := svc.SealUser(ev.Username)
		if err != nil {
			return err
		}

		expiresAt, _ := svc.SealedUntil(user.Id)
		dropped := sockets.DropUser(user.Id, event.SealedNoticeBody{
			Reason:    sealedNoticeReason,
			ExpiresAt: expiresAt,
		})
		log.Infof("handler: user %s sealed until %s, %d sockets dropped",
			user.Username, expiresAt.Format(time.RFC3339), dropped)

		return accepted(c)
	}
}

// NewSealAddrHandler seals a single address. The requester's own
// address and loopback are refused by the policy.
func NewSealAddrHandler(svc AddrSealer) echo.HandlerFunc {
	if svc == nil {
		panic("seal addr handler called with nil service")
	}

	return func(c echo.Context) error {
		var ev event.SealAddrEvent
		if err := c.Bind(&ev); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		if err := svc.SealAddr(ev.Addr, c.RealIP()); err != nil {
			return err
		}
		return accepted(c)
	}
}

// NewSealUserAddrsHandler seals every address the target's live sockets
// are on. A policy violation inside the set comes back as the error even
// though the clean addresses were sealed; the error response then hides
// the counts, which is why every outcome is also logged by the policy.
func NewSealUserAddrsHandler(svc BulkSealer) echo.HandlerFunc {
	if svc == nil {
		panic("seal user addrs handler called with nil service")
	}

	return func(c echo.Context) error {
		var ev event.SealUserAddrsEvent
		if err := c.Bind(&ev); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		sealed, total, err := svc.SealUserAddrs(ev.UserId, c.RealIP())
		if err != nil {
			return err
		}

		return c.JSON(http.StatusOK, event.SealUserAddrsResponse{
			UserId:      ev.UserId,
			SealedCount: sealed,
			TotalCount:  total,
		})
	}
}

// NewSealListHandler reports every active seal with its expiry.
func NewSealListHandler(svc SealLister) echo.HandlerFunc {
	if svc == nil {
		panic("seal list handler called with nil service")
	}

	return func(c echo.Context) error {
		seals, err := svc.SealedList()
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, event.SealListResponse{Seals: seals})
	}
}
