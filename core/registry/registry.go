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

// Package registry tracks the live sockets of every connected user. It is
// the gateway's bookkeeping and the moderation layer's view of who is
// online and from which addresses.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	"github.com/lumichat/warden/json"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
)

const SealedNoticeType = "sealed_notice"

var ErrRegistryClosed = domain.WardenError("socket registry is closed")

// Conn is the slice of a live websocket connection the registry drives.
// Frames arrive pre-encoded: the registry owns the wire format, the
// connection only carries bytes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type socket struct {
	conn Conn
	addr string
	// gorilla allows a single concurrent writer per connection
	writeMx *sync.Mutex
}

type Registry struct {
	version string

	mx       *sync.RWMutex
	sockets  map[domain.ID]map[string]socket
	isClosed *atomic.Bool
}

func NewRegistry(version string) *Registry {
	return &Registry{
		version:  version,
		mx:       new(sync.RWMutex),
		sockets:  map[domain.ID]map[string]socket{},
		isClosed: new(atomic.Bool),
	}
}

// Register attaches a live connection to the user and returns the session id
// the gateway must hand back to Unregister.
func (r *Registry) Register(userId domain.ID, addr string, conn Conn) (string, error) {
	if userId == "" || conn == nil {
		return "", domain.ErrEmptyInput
	}
	if r.isClosed.Load() {
		return "", ErrRegistryClosed
	}

	sessionId := uuid.New().String()

	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.sockets[userId]; !ok {
		r.sockets[userId] = map[string]socket{}
	}
	r.sockets[userId][sessionId] = socket{conn: conn, addr: addr, writeMx: new(sync.Mutex)}
	metrics.GatewayConnections.Inc()

	log.Infof("registry: socket attached: user %s from %s", userId, addr)
	return sessionId, nil
}

// Unregister drops the session's bookkeeping. The connection itself is closed
// by whoever owns it. Unknown sessions are ignored, expiry and manual drops
// can race safely.
func (r *Registry) Unregister(userId domain.ID, sessionId string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	sessions, ok := r.sockets[userId]
	if !ok {
		return
	}
	delete(sessions, sessionId)
	if len(sessions) == 0 {
		delete(r.sockets, userId)
	}
	log.Debugf("registry: socket detached: user %s", userId)
}

// UserAddrs reports the distinct remote addresses of the user's live sockets.
func (r *Registry) UserAddrs(userId domain.ID) []string {
	r.mx.RLock()
	defer r.mx.RUnlock()

	seen := map[string]struct{}{}
	addrs := make([]string, 0, len(r.sockets[userId]))
	for _, s := range r.sockets[userId] {
		if _, ok := seen[s.addr]; ok {
			continue
		}
		seen[s.addr] = struct{}{}
		addrs = append(addrs, s.addr)
	}
	return addrs
}

func (r *Registry) IsOnline(userId domain.ID) bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.sockets[userId]) != 0
}

// OnlineCount reports the number of distinct users with at least one socket.
func (r *Registry) OnlineCount() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.sockets)
}

// Push delivers the body to every live socket of the user and reports how
// many sockets were reached. An offline user is not an error. The envelope
// is marshalled once and written as a single text frame, so a raw JSON body
// stays a JSON object on the wire.
func (r *Registry) Push(userId domain.ID, msgType string, body any) (int, error) {
	if r.isClosed.Load() {
		return 0, ErrRegistryClosed
	}

	bt, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	msg := event.Message{
		Body:      json.RawMessage(bt),
		MessageId: uuid.New().String(),
		UserId:    userId,
		Type:      msgType,
		Timestamp: time.Now(),
		Version:   r.version,
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	r.mx.RLock()
	defer r.mx.RUnlock()

	var delivered int
	for sessionId, s := range r.sockets[userId] {
		s.writeMx.Lock()
		err := s.conn.WriteMessage(websocket.TextMessage, frame)
		s.writeMx.Unlock()
		if err != nil {
			log.Errorf("registry: push: user %s session %s: %v", userId, sessionId, err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// DropUser pushes the sealed notice to the user's sockets and closes them.
// Returns the number of sockets dropped.
func (r *Registry) DropUser(userId domain.ID, notice event.SealedNoticeBody) int {
	if _, err := r.Push(userId, SealedNoticeType, notice); err != nil {
		log.Errorf("registry: drop user %s: notice: %v", userId, err)
	}

	r.mx.Lock()
	sessions := r.sockets[userId]
	delete(r.sockets, userId)
	r.mx.Unlock()

	for _, s := range sessions {
		_ = s.conn.Close()
	}
	if len(sessions) != 0 {
		log.Infof("registry: user dropped: %s (%d sockets)", userId, len(sessions))
	}
	return len(sessions)
}

// Close closes every tracked connection. Further registrations are rejected.
func (r *Registry) Close() {
	if !r.isClosed.CompareAndSwap(false, true) {
		return
	}

	r.mx.Lock()
	sockets := r.sockets
	r.sockets = map[domain.ID]map[string]socket{}
	r.mx.Unlock()

	for _, sessions := range sockets {
		for _, s := range sessions {
			_ = s.conn.Close()
		}
	}
	log.Infoln("registry: closed")
}
