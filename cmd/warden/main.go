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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docker/go-units"
	root "github.com/lumichat/warden"
	"github.com/lumichat/warden/config"
	"github.com/lumichat/warden/core/emoticon"
	"github.com/lumichat/warden/core/registry"
	"github.com/lumichat/warden/core/seal"
	"github.com/lumichat/warden/core/token"
	"github.com/lumichat/warden/database"
	local "github.com/lumichat/warden/database/local-store"
	"github.com/lumichat/warden/metrics"
	"github.com/lumichat/warden/server"
	log "github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs" // DO NOT remove
)

const shutdownTimeout = 10 * time.Second

func main() {
	conf := config.Config()

	lvl, err := log.ParseLevel(conf.Logging.Level)
	if err != nil {
		log.Errorf(
			"failed to parse log level %s: %v, defaulting to INFO level...",
			conf.Logging.Level, err,
		)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	if conf.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.DateTime})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}

	var interruptChan = make(chan os.Signal, 1)
	signal.Notify(interruptChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	db, err := local.New(conf.Database.Path, local.DefaultOptions())
	if err != nil {
		log.Fatalf("main: fail opening local store: %v", err)
	}
	defer db.Close()
	log.Infof("main: local store at %s", db.Path())

	if err := database.NewAuthRepo(db).Authenticate(root.Name, conf.Database.Seed); err != nil {
		log.Fatalf("main: fail unlocking local store: %v", err)
	}

	clk := clock.New()
	store := seal.NewStore(clk, map[seal.Namespace]time.Duration{
		seal.SealedUsers: conf.Seal.UserTTL,
		seal.SealedAddrs: conf.Seal.AddrTTL,
	})
	defer store.Close()

	users := database.NewUserRepo(db)
	sockets := registry.NewRegistry(conf.Version.String())
	defer sockets.Close()

	sealSvc := seal.NewService(store, users, sockets)
	tokens := token.NewCache(
		clk,
		token.NewHTTPProvider(conf.Auth.Endpoint, conf.Auth.Secret),
		conf.Auth.Margin,
	)
	scraper := emoticon.NewScraper(conf.Emoticon.Origin, conf.Emoticon.CacheSize, conf.Emoticon.CacheTTL)

	metrics.RegisterOnlineGauge(sockets.OnlineCount)
	metrics.RegisterSealGauges(sealSvc.Counts)

	srv := server.New(conf.Server.Addr(), server.Deps{
		Version:     conf.Version,
		DB:          db,
		Users:       users,
		Groups:      database.NewGroupRepo(db),
		Uploads:     database.NewUploadRepo(db),
		Seals:       sealSvc,
		Sockets:     sockets,
		Tokens:      tokens,
		Emoticons:   scraper,
		UploadLimit: conf.Upload.Limit,
	})

	log.Infof("main: upload cap %s, user seal TTL %s, addr seal TTL %s",
		units.BytesSize(float64(conf.Upload.LimitBytes())), conf.Seal.UserTTL, conf.Seal.AddrTTL)

	go func() {
		if err := srv.Start(); err != nil {
			log.Errorf("main: server failed: %v", err)
			interruptChan <- syscall.SIGTERM
		}
	}()

	<-interruptChan
	log.Infoln("warden interrupted...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("main: shutdown: %v", err)
	}
}
