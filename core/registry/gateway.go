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

package registry

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/domain"
	log "github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = time.Minute
	pingInterval = 30 * time.Second

	UserIdHeader = "X-User-Id"
)

type SealChecker interface {
	IsUserSealed(userId domain.ID) bool
	IsAddrSealed(addr string) bool
}

// NewGatewayHandler upgrades the request to a websocket, attaches it to the
// registry and holds it open until the client goes away. Sealed users and
// sealed addresses are rejected before the upgrade.
func NewGatewayHandler(reg *Registry, seals SealChecker) echo.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// origin is filtered at the edge proxy
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return func(c echo.Context) error {
		if reg == nil || seals == nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "gateway is not initialized")
		}

		userId := c.QueryParam("user_id")
		if userId == "" {
			userId = c.Request().Header.Get(UserIdHeader)
		}
		if strings.TrimSpace(userId) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing user id")
		}

		addr := c.RealIP()
		if seals.IsUserSealed(userId) || seals.IsAddrSealed(addr) {
			log.Warnf("gateway: sealed client rejected: user %s from %s", userId, addr)
			return echo.NewHTTPError(http.StatusForbidden, "sealed")
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already written the handshake error
			return nil
		}

		sessionId, err := reg.Register(userId, addr, conn)
		if err != nil {
			_ = conn.Close()
			return err
		}

		serve(reg, conn, userId, sessionId)
		return nil
	}
}

// serve owns the connection until it dies. Inbound frames are drained, the
// gateway only pushes.
func serve(reg *Registry, conn *websocket.Conn, userId domain.ID, sessionId string) {
	defer func() {
		reg.Unregister(userId, sessionId)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	readErrChan := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErrChan <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-readErrChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("gateway: socket read: user %s: %v", userId, err)
			}
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			if err != nil {
				log.Debugf("gateway: ping: user %s: %v", userId, err)
				return
			}
		}
	}
}
