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

package seal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumichat/warden/database"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
)

// Addresses the server itself answers on. Never sealable.
var localAddrs = map[string]struct{}{
	"::1":       {},
	"127.0.0.1": {},
}

func isLocalAddr(addr string) bool {
	_, ok := localAddrs[addr]
	return ok
}

type UserDirectory interface {
	GetByUsername(username string) (domain.User, error)
	GetBatch(userIDs ...string) ([]domain.User, error)
}

type SocketRegistry interface {
	UserAddrs(userId domain.ID) []string
}

// Service applies the moderation rules on top of the seal store.
// Validation failures come back as domain errors, verbatim; directory
// failures are wrapped as domain.ErrCollaborator.
type Service struct {
	store   *Store
	users   UserDirectory
	sockets SocketRegistry
}

func NewService(store *Store, users UserDirectory, sockets SocketRegistry) *Service {
	return &Service{store: store, users: users, sockets: sockets}
}

func countRejection(err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadySealed):
		metrics.SealRejections.WithLabelValues(metrics.ReasonAlreadySealed).Inc()
	case errors.Is(err, domain.ErrAllAlreadySealed):
		metrics.SealRejections.WithLabelValues(metrics.ReasonAllAlreadySealed).Inc()
	case errors.Is(err, domain.ErrUserNotFound):
		metrics.SealRejections.WithLabelValues(metrics.ReasonNotFound).Inc()
	case errors.Is(err, domain.ErrLocalAddr):
		metrics.SealRejections.WithLabelValues(metrics.ReasonLocalAddr).Inc()
	case errors.Is(err, domain.ErrSelfSeal):
		metrics.SealRejections.WithLabelValues(metrics.ReasonSelfSeal).Inc()
	case errors.Is(err, domain.ErrEmptyInput):
		metrics.SealRejections.WithLabelValues(metrics.ReasonEmptyInput).Inc()
	}
}

// SealUser resolves the username and seals the user id. The sealed
// user is returned so the caller can notify their live sockets.
func (s *Service) SealUser(username string) (user domain.User, err error) {
	defer func() { countRejection(err) }()

	username = strings.TrimSpace(username)
	if username == "" {
		return user, domain.ErrEmptyInput
	}

	user, err = s.users.GetByUsername(username)
	if errors.Is(err, database.ErrUserNotFound) {
		return user, domain.ErrUserNotFound
	}
	if err != nil {
		return user, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	if err = s.store.Insert(SealedUsers, user.Id); err != nil {
		return user, err
	}
	user.IsSealed = true

	log.Infof("seal: user sealed: %s (%s)", user.Id, user.Username)
	return user, nil
}

// SealAddr seals a single remote address.
func (s *Service) SealAddr(addr, requesterAddr string) (err error) {
	defer func() { countRejection(err) }()

	addr = strings.TrimSpace(addr)
	if addr == "" {
		return domain.ErrEmptyInput
	}
	if isLocalAddr(addr) {
		return domain.ErrLocalAddr
	}
	if addr == requesterAddr {
		return domain.ErrSelfSeal
	}

	if err := s.store.Insert(SealedAddrs, addr); err != nil {
		return err
	}

	log.Infof("seal: address sealed: %s", addr)
	return nil
}

// SealUserAddrs seals every address the user's live sockets are on.
// Addresses are handled independently: a local or requester address in
// the set is skipped and its violation becomes the call's result, but
// the remaining addresses are sealed anyway in the same pass. Callers
// must not read the error as "nothing was sealed"; the counts say what
// actually happened.
func (s *Service) SealUserAddrs(userId domain.ID, requesterAddr string) (sealed, total int, err error) {
	defer func() { countRejection(err) }()

	if strings.TrimSpace(userId) == "" {
		return 0, 0, domain.ErrEmptyInput
	}

	addrs := s.sockets.UserAddrs(userId)
	total = len(addrs)

	allSealed := true
	for _, addr := range addrs {
		if !s.store.Contains(SealedAddrs, addr) {
			allSealed = false
			break
		}
	}
	if allSealed {
		return 0, total, domain.ErrAllAlreadySealed
	}

	var violation error
	for _, addr := range addrs {
		switch {
		case isLocalAddr(addr):
			log.Warnf("seal: skipped local address of user %s: %s", userId, addr)
			if violation == nil {
				violation = domain.ErrLocalAddr
			}
		case addr == requesterAddr:
			log.Warnf("seal: skipped requester address of user %s: %s", userId, addr)
			if violation == nil {
				violation = domain.ErrSelfSeal
			}
		default:
			insErr := s.store.Insert(SealedAddrs, addr)
			if errors.Is(insErr, domain.ErrAlreadySealed) {
				log.Infof("seal: address already sealed: %s", addr)
				continue
			}
			if insErr != nil {
				return sealed, total, insErr
			}
			sealed++
			log.Infof("seal: address sealed: %s", addr)
		}
	}
	if violation != nil {
		return sealed, total, violation
	}
	return sealed, total, nil
}

// SealedList reports every active seal. User seals carry the display
// username, resolved thru the directory; a sealed id the directory no
// longer knows is dropped from the list.
func (s *Service) SealedList() ([]domain.SealRecord, error) {
	userEntries := s.store.Entries(SealedUsers)
	addrEntries := s.store.Entries(SealedAddrs)

	records := make([]domain.SealRecord, 0, len(userEntries)+len(addrEntries))

	if len(userEntries) > 0 {
		ids := make([]string, 0, len(userEntries))
		for id := range userEntries {
			ids = append(ids, id)
		}
		users, err := s.users.GetBatch(ids...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
		}
		for _, u := range users {
			records = append(records, domain.SealRecord{
				Kind:      domain.SealKindUser,
				Value:     u.Username,
				ExpiresAt: userEntries[u.Id],
			})
		}
	}

	for addr, until := range addrEntries {
		records = append(records, domain.SealRecord{
			Kind:      domain.SealKindIP,
			Value:     addr,
			ExpiresAt: until,
		})
	}
	return records, nil
}

// IsUserSealed reports whether the user id carries an active seal.
func (s *Service) IsUserSealed(userId domain.ID) bool {
	return s.store.Contains(SealedUsers, userId)
}

// IsAddrSealed reports whether the address carries an active seal.
func (s *Service) IsAddrSealed(addr string) bool {
	return s.store.Contains(SealedAddrs, addr)
}

// SealedUntil reports when the user's active seal lapses.
func (s *Service) SealedUntil(userId domain.ID) (time.Time, bool) {
	return s.store.Expiry(SealedUsers, userId)
}

// Counts reports the number of active seals per namespace.
func (s *Service) Counts() (users, addrs int) {
	return s.store.Count(SealedUsers), s.store.Count(SealedAddrs)
}
