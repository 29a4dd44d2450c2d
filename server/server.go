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

// Package server wires every handler onto one echo instance. The
// service API lives under the internal prefix, only the socket gateway
// and the metrics exposition face the edge.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/lumichat/warden/core/emoticon"
	"github.com/lumichat/warden/core/handler"
	"github.com/lumichat/warden/core/middleware"
	"github.com/lumichat/warden/core/registry"
	"github.com/lumichat/warden/core/seal"
	"github.com/lumichat/warden/core/token"
	"github.com/lumichat/warden/database"
	local "github.com/lumichat/warden/database/local-store"
	"github.com/lumichat/warden/event"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
)

// Deps carries the wired services. Handlers pick the narrow slice of
// each one they need through their own interfaces.
type Deps struct {
	Version *semver.Version

	DB        *local.DB
	Users     *database.UserRepo
	Groups    *database.GroupRepo
	Uploads   *database.UploadRepo
	Seals     *seal.Service
	Sockets   *registry.Registry
	Tokens    *token.Cache
	Emoticons *emoticon.Scraper

	UploadLimit string
}

type Server struct {
	echo *echo.Echo
	addr string
}

func New(addr string, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(middleware.Logging, middleware.Metrics)

	api := e.Group(event.InternalRoutePrefix)

	api.POST("/moderation/seals/user", handler.NewSealUserHandler(deps.Seals, deps.Sockets))
	api.POST("/moderation/seals/addr", handler.NewSealAddrHandler(deps.Seals))
	api.POST("/moderation/seals/user-addrs", handler.NewSealUserAddrsHandler(deps.Seals))
	api.GET("/moderation/seals", handler.NewSealListHandler(deps.Seals))

	api.GET("/users", handler.NewSearchUsersHandler(deps.Users, deps.Seals, deps.Sockets))
	api.GET("/users/:id", handler.NewGetUserHandler(deps.Users, deps.Seals, deps.Sockets))
	api.GET("/groups", handler.NewSearchGroupsHandler(deps.Groups))
	api.GET("/groups/:id", handler.NewGetGroupHandler(deps.Groups))
	api.POST("/groups/:id/members", handler.NewAddGroupMemberHandler(deps.Groups))
	api.DELETE("/groups/:id/members/:userId", handler.NewRemoveGroupMemberHandler(deps.Groups))
	api.GET("/groups/:id/members", handler.NewListGroupMembersHandler(deps.Groups))

	api.GET("/emoticons", handler.NewGetEmoticonsHandler(deps.Emoticons))
	api.GET("/token", handler.NewGetTokenHandler(deps.Tokens))

	api.POST("/upload", handler.NewUploadFileHandler(deps.Uploads), echomw.BodyLimit(deps.UploadLimit))
	api.GET("/files/:key", handler.NewGetFileHandler(deps.Uploads))

	api.GET("/status", handler.NewGetStatusHandler(
		deps.Version, time.Now(), deps.DB, deps.Sockets, deps.Seals,
	))

	e.GET("/gateway", registry.NewGatewayHandler(deps.Sockets, deps.Seals))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return &Server{echo: e, addr: addr}
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving until Shutdown. A closed server returns nil.
func (s *Server) Start() error {
	log.Infof("server: listening on %s", s.addr)
	err := s.echo.Start(s.addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Infoln("server: shutting down")
	return s.echo.Shutdown(ctx)
}
