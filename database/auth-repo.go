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

package database

import (
	"strings"
	"sync/atomic"

	local "github.com/lumichat/warden/database/local-store"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

var ErrNotAuthenticated = local.DBError("storage is not authenticated")

type AuthStorer interface {
	Run(username, password string) error
	IsFirstRun() bool
}

// AuthRepo opens the encrypted store. Every other repo stays unusable
// until Authenticate has run once.
type AuthRepo struct {
	db AuthStorer

	isAuthenticated *atomic.Bool
	sessionToken    string
}

func NewAuthRepo(db AuthStorer) *AuthRepo {
	return &AuthRepo{db: db, isAuthenticated: new(atomic.Bool)}
}

func (repo *AuthRepo) Authenticate(username, password string) error {
	if repo == nil {
		return ErrNotAuthenticated
	}
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return local.ErrWrongPassword
	}
	if repo.isAuthenticated.Load() {
		return nil
	}

	if err := repo.db.Run(username, password); err != nil {
		return err
	}
	if repo.db.IsFirstRun() {
		log.Infoln("auth: storage initialized for the first time")
	}

	repo.sessionToken = ulid.Make().String()
	repo.isAuthenticated.Store(true)
	return nil
}

func (repo *AuthRepo) IsAuthenticated() bool {
	if repo == nil {
		return false
	}
	return repo.isAuthenticated.Load()
}

func (repo *AuthRepo) SessionToken() string {
	if repo == nil {
		return ""
	}
	return repo.sessionToken
}

func (repo *AuthRepo) Logout() {
	if repo == nil {
		return
	}
	repo.sessionToken = ""
	repo.isAuthenticated.Store(false)
}
