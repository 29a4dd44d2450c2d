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
	"time"

	local "github.com/lumichat/warden/database/local-store"
	"github.com/lumichat/warden/security"
)

const (
	UploadsRepoName  = "/UPLOADS"
	FileSubNamespace = "FILES"

	foreignUploadTTL = time.Hour * 24 * 7
)

var (
	ErrUploadNotFound    = local.DBError("upload not found")
	ErrUploadRepoNotInit = local.DBError("upload repo is not initialized")
)

type UploadStorer interface {
	Set(key local.DatabaseKey, value []byte) error
	Get(key local.DatabaseKey) ([]byte, error)
	GetSize(key local.DatabaseKey) (int64, error)
	GetExpiration(key local.DatabaseKey) (uint64, error)
	Delete(key local.DatabaseKey) error
	SetWithTTL(key local.DatabaseKey, value []byte, ttl time.Duration) error
}

// UploadRepo is the local fallback for file uploads. Content lands here
// when the media service cannot take it, keyed by content hash.
type UploadRepo struct {
	db UploadStorer
}

type (
	Base64File string
	FileKey    string
)

func NewUploadRepo(db UploadStorer) *UploadRepo {
	return &UploadRepo{db: db}
}

func uploadKey(userId, key string) local.DatabaseKey {
	return local.NewPrefixBuilder(UploadsRepoName).
		AddRootID(FileSubNamespace).
		AddParentId(userId).
		AddId(key).
		Build()
}

func (repo *UploadRepo) GetFile(userId, key string) (Base64File, error) {
	if repo == nil {
		return "", ErrUploadRepoNotInit
	}
	if key == "" || userId == "" {
		return "", ErrUploadNotFound
	}

	data, err := repo.db.Get(uploadKey(userId, key))
	if local.IsNotFoundError(err) {
		return "", ErrUploadNotFound
	}

	return Base64File(data), err
}

func (repo *UploadRepo) SetFile(userId string, file Base64File) (_ FileKey, err error) {
	if repo == nil {
		return "", ErrUploadRepoNotInit
	}
	if len(file) == 0 || len(userId) == 0 {
		return "", local.DBError("no data for file set")
	}
	key := security.ConvertToSHA256Hex([]byte(file))

	return FileKey(key), repo.db.Set(uploadKey(userId, key), []byte(file))
}

// SetForeignFileWithTTL caches a file fetched from another service.
// Foreign copies expire so the fallback store cannot grow unbounded.
func (repo *UploadRepo) SetForeignFileWithTTL(userId, key string, file Base64File) error {
	if repo == nil {
		return ErrUploadRepoNotInit
	}
	if len(file) == 0 || len(userId) == 0 {
		return local.DBError("no data for file set provided")
	}
	if key == "" {
		return local.DBError("no key for file set provided")
	}

	return repo.db.SetWithTTL(uploadKey(userId, key), []byte(file), foreignUploadTTL)
}

func (repo *UploadRepo) FileSize(userId, key string) (int64, error) {
	if repo == nil {
		return 0, ErrUploadRepoNotInit
	}
	size, err := repo.db.GetSize(uploadKey(userId, key))
	if local.IsNotFoundError(err) {
		return 0, ErrUploadNotFound
	}
	return size, err
}

// FileExpiration reports when a foreign copy lapses, zero time for
// permanent uploads.
func (repo *UploadRepo) FileExpiration(userId, key string) (time.Time, error) {
	if repo == nil {
		return time.Time{}, ErrUploadRepoNotInit
	}
	expiresAt, err := repo.db.GetExpiration(uploadKey(userId, key))
	if local.IsNotFoundError(err) {
		return time.Time{}, ErrUploadNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	if expiresAt == 0 {
		return time.Time{}, nil
	}
	return time.Unix(int64(expiresAt), 0), nil
}

func (repo *UploadRepo) DeleteFile(userId, key string) error {
	if repo == nil {
		return ErrUploadRepoNotInit
	}
	if key == "" || userId == "" {
		return ErrUploadNotFound
	}
	return repo.db.Delete(uploadKey(userId, key))
}
