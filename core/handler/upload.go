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
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/database"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	log "github.com/sirupsen/logrus"
)

// FileVault is the local fallback store for uploads, keyed per user.
type FileVault interface {
	GetFile(userId, key string) (database.Base64File, error)
	SetFile(userId string, file database.Base64File) (database.FileKey, error)
}

// NewUploadFileHandler stores a "mime,base64" payload for the acting
// user and returns its content key. The request size cap is enforced by
// the server's body limit.
func NewUploadFileHandler(vault FileVault) echo.HandlerFunc {
	if vault == nil {
		panic("upload handler called with nil vault")
	}

	return func(c echo.Context) error {
		userId := requesterId(c)
		if userId == "" {
			return domain.ErrEmptyInput
		}

		var ev event.UploadFileEvent
		if err := c.Bind(&ev); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		mime, data, ok := strings.Cut(ev.File, ",")
		if !ok || mime == "" || data == "" {
			return domain.ErrEmptyInput
		}
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "file content is not valid base64")
		}

		key, err := vault.SetFile(userId, database.Base64File(ev.File))
		if err != nil {
			return err
		}

		log.Infof("handler: file stored for user %s: %s (%s)", userId, key, mime)
		return c.JSON(http.StatusOK, event.UploadFileResponse{Upload: domain.Upload{
			Key:       string(key),
			MimeType:  mime,
			Size:      int64(len(content)),
			CreatedAt: time.Now(),
		}})
	}
}

// NewGetFileHandler returns a stored payload by its content key.
func NewGetFileHandler(vault FileVault) echo.HandlerFunc {
	if vault == nil {
		panic("get file handler called with nil vault")
	}

	return func(c echo.Context) error {
		userId := requesterId(c)
		if userId == "" {
			return domain.ErrEmptyInput
		}

		file, err := vault.GetFile(userId, c.Param("key"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, event.GetFileResponse{File: string(file)})
	}
}
