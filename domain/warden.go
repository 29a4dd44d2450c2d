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

package domain

import (
	"time"
)

type ID = string

// User defines model for User.
type User struct {
	// AvatarKey mime type + "," + base64
	AvatarKey string     `json:"avatar_key,omitempty"`
	Bio       string     `json:"bio"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Id        string     `json:"id"`
	IsOnline  bool       `json:"is_online"`
	IsSealed  bool       `json:"is_sealed"`
	Nickname  string     `json:"nickname"`
	Username  string     `json:"username"`
}

// Group defines model for Group.
type Group struct {
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	Id           string     `json:"id"`
	Name         string     `json:"name"`
	OwnerId      string     `json:"owner_id"`
	MembersCount int64      `json:"members_count"`
}

type SealKind string

func (k SealKind) String() string {
	return string(k)
}

const (
	SealKindUser SealKind = "user"
	SealKindIP   SealKind = "ip"
)

// SealRecord is a single active seal as reported to operators.
type SealRecord struct {
	Kind      SealKind  `json:"kind"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Emoticon defines model for Emoticon.
type Emoticon struct {
	Origin    string    `json:"origin"`
	Url       string    `json:"url"`
	Tag       string    `json:"tag"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Upload defines model for Upload.
type Upload struct {
	Key       string    `json:"key"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Error defines model for Error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

type WardenError string

func (e WardenError) Error() string {
	return string(e)
}

const (
	ErrEmptyInput       WardenError = "empty or malformed input"
	ErrUserNotFound     WardenError = "user not found"
	ErrAlreadySealed    WardenError = "target is already sealed"
	ErrAllAlreadySealed WardenError = "all addresses are already sealed"
	ErrLocalAddr        WardenError = "local address cannot be sealed"
	ErrSelfSeal         WardenError = "operator cannot seal themselves"
	ErrTokenFetch       WardenError = "auth token fetch failed"
	ErrCollaborator     WardenError = "collaborator service unavailable"
)
