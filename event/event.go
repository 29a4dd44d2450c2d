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

package event

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/json"
)

const (
	Accepted            acceptedResponse = `{"code":0,"message":"Accepted"}`
	InternalRoutePrefix string           = "/internal"
	EndCursor           string           = "end"
)

type acceptedResponse string

// ErrorEvent defines model for ErrorEvent.
type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse defines model for ErrorResponse.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e ResponseError) Error() string {
	return e.Message
}

// SealUserEvent defines model for SealUserEvent.
type SealUserEvent struct {
	Username string `json:"username"`
}

// SealAddrEvent defines model for SealAddrEvent.
type SealAddrEvent struct {
	Addr string `json:"addr"`
}

// SealUserAddrsEvent defines model for SealUserAddrsEvent.
type SealUserAddrsEvent struct {
	UserId domain.ID `json:"user_id"`
}

// SealUserAddrsResponse reports the bulk outcome: how many of the
// target's live addresses were newly sealed.
type SealUserAddrsResponse struct {
	UserId      domain.ID `json:"user_id"`
	SealedCount int       `json:"sealed_count"`
	TotalCount  int       `json:"total_count"`
}

// SealListResponse defines model for SealListResponse.
type SealListResponse struct {
	Seals []domain.SealRecord `json:"seals"`
}

// SearchUsersEvent defines model for SearchUsersEvent.
type SearchUsersEvent struct {
	Query  string  `json:"query"`
	Cursor *string `json:"cursor,omitempty"`
	Limit  *uint64 `json:"limit,omitempty"`
}

// UsersResponse defines model for UsersResponse.
type UsersResponse struct {
	Cursor string        `json:"cursor"`
	Users  []domain.User `json:"users"`
}

// GetUserEvent defines model for GetUserEvent.
type GetUserEvent struct {
	UserId domain.ID `json:"user_id"`
}

type GetUserResponse = domain.User

// SearchGroupsEvent defines model for SearchGroupsEvent.
type SearchGroupsEvent = SearchUsersEvent

// GroupsResponse defines model for GroupsResponse.
type GroupsResponse struct {
	Cursor string         `json:"cursor"`
	Groups []domain.Group `json:"groups"`
}

// GetGroupEvent defines model for GetGroupEvent.
type GetGroupEvent struct {
	GroupId domain.ID `json:"group_id"`
}

type GetGroupResponse = domain.Group

// GroupMemberEvent defines model for GroupMemberEvent.
type GroupMemberEvent struct {
	UserId domain.ID `json:"user_id"`
}

// GroupMembersResponse defines model for GroupMembersResponse.
type GroupMembersResponse struct {
	Cursor  string      `json:"cursor"`
	Total   uint64      `json:"total"`
	Members []domain.ID `json:"members"`
}

// TokenResponse defines model for TokenResponse.
type TokenResponse struct {
	Token string `json:"token"`
}

// GetEmoticonsEvent defines model for GetEmoticonsEvent.
type GetEmoticonsEvent struct {
	Origin *string `json:"origin,omitempty"`
}

// EmoticonsResponse defines model for EmoticonsResponse.
type EmoticonsResponse struct {
	Origin    string            `json:"origin"`
	Emoticons []domain.Emoticon `json:"emoticons"`
}

type UploadFileEvent struct {
	// File mime type + "," + base64
	File string `json:"file"`
}

type UploadFileResponse struct {
	domain.Upload
}

type GetFileEvent struct {
	Key string `json:"key"`
}

type GetFileResponse struct {
	// File mime type + "," + base64
	File string `json:"file"`
}

// StatusResponse defines model for StatusResponse.
type StatusResponse struct {
	Version   *semver.Version `json:"version"`
	StartTime string          `json:"start_time"`

	DatabaseStats map[string]string `json:"database_stats"`
	MemoryStats   map[string]string `json:"memory_stats"`
	CPUStats      map[string]string `json:"cpu_stats"`

	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`

	UsersOnline int `json:"users_online"`
	SealedUsers int `json:"sealed_users"`
	SealedAddrs int `json:"sealed_addrs"`
}

// Message is the gateway push envelope delivered to connected sockets.
type Message struct {
	Body      json.RawMessage `json:"body"`
	MessageId domain.ID       `json:"message_id"`
	UserId    domain.ID       `json:"user_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
}

// MessageBody defines model for Message.Body.
type MessageBody any

// SealedNoticeBody is pushed to a user's sockets right before the
// gateway drops them.
type SealedNoticeBody struct {
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}
