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

// Package seal keeps the ephemeral moderation state: which users and
// addresses are temporarily sealed, for how long, and the policy rules
// that decide who may be sealed at all. Nothing here survives a
// restart.
package seal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
)

// Namespace partitions the store. Every namespace carries its own
// fixed entry lifetime.
type Namespace string

const (
	SealedUsers Namespace = "users"
	SealedAddrs Namespace = "addrs"
)

var (
	ErrUnknownNamespace = domain.WardenError("unknown seal namespace")
	ErrStoreClosed      = domain.WardenError("seal store is closed")
)

type entry struct {
	seq       uint64
	expiresAt time.Time
}

// Store is an in-memory set of sealed keys with automatic expiry.
// Each live entry owns exactly one pending removal in the scheduler;
// the sequence number ties the removal to the entry it was armed for,
// so a key sealed again after expiry is never dropped by a stale
// removal.
type Store struct {
	clk  clock.Clock
	ttls map[Namespace]time.Duration

	mx     sync.RWMutex
	seq    uint64
	spaces map[Namespace]map[string]entry

	sched    *scheduler
	isClosed atomic.Bool
}

// NewStore starts the expiry scheduler goroutine. Close releases it.
func NewStore(clk clock.Clock, ttls map[Namespace]time.Duration) *Store {
	s := &Store{
		clk:    clk,
		ttls:   ttls,
		spaces: make(map[Namespace]map[string]entry, len(ttls)),
	}
	for ns := range ttls {
		s.spaces[ns] = make(map[string]entry)
	}
	s.sched = newScheduler(clk, s.expire)
	return s
}

// Contains reports whether the key is currently sealed. An entry whose
// deadline has passed reads as absent even before its removal fired.
func (s *Store) Contains(ns Namespace, key string) bool {
	s.mx.RLock()
	defer s.mx.RUnlock()

	e, ok := s.spaces[ns][key]
	return ok && e.expiresAt.After(s.clk.Now())
}

// Insert seals the key for the namespace lifetime and arms its
// removal. A live duplicate fails with ErrAlreadySealed; the existing
// entry is never overwritten or extended.
func (s *Store) Insert(ns Namespace, key string) error {
	if key == "" {
		return domain.ErrEmptyInput
	}
	if s.isClosed.Load() {
		return ErrStoreClosed
	}
	ttl, ok := s.ttls[ns]
	if !ok {
		return ErrUnknownNamespace
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	now := s.clk.Now()
	if e, ok := s.spaces[ns][key]; ok && e.expiresAt.After(now) {
		return domain.ErrAlreadySealed
	}

	s.seq++
	deadline := now.Add(ttl)
	s.spaces[ns][key] = entry{seq: s.seq, expiresAt: deadline}
	s.sched.arm(ns, key, s.seq, deadline)
	metrics.SealsTotal.WithLabelValues(string(ns)).Inc()
	return nil
}

// Remove drops an entry ahead of its deadline. Removing an absent key
// is a no-op so expiry and manual removal can race safely. The armed
// removal stays queued and discards itself when it pops.
func (s *Store) Remove(ns Namespace, key string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	delete(s.spaces[ns], key)
}

// Keys returns a snapshot of the live keys in a namespace, taken in
// one read-locked pass. Entries past their deadline are excluded,
// entries expiring concurrently are either in or out, never torn.
func (s *Store) Keys(ns Namespace) []string {
	s.mx.RLock()
	defer s.mx.RUnlock()

	now := s.clk.Now()
	keys := make([]string, 0, len(s.spaces[ns]))
	for k, e := range s.spaces[ns] {
		if e.expiresAt.After(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Entries returns a snapshot of the live keys in a namespace with
// their removal deadlines.
func (s *Store) Entries(ns Namespace) map[string]time.Time {
	s.mx.RLock()
	defer s.mx.RUnlock()

	now := s.clk.Now()
	out := make(map[string]time.Time, len(s.spaces[ns]))
	for k, e := range s.spaces[ns] {
		if e.expiresAt.After(now) {
			out[k] = e.expiresAt
		}
	}
	return out
}

// Count reports the number of live entries in a namespace.
func (s *Store) Count(ns Namespace) int {
	s.mx.RLock()
	defer s.mx.RUnlock()

	now := s.clk.Now()
	n := 0
	for _, e := range s.spaces[ns] {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n
}

// Expiry reports the removal deadline of a live entry.
func (s *Store) Expiry(ns Namespace, key string) (time.Time, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	e, ok := s.spaces[ns][key]
	if !ok || !e.expiresAt.After(s.clk.Now()) {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

// Close stops the scheduler goroutine. Idempotent.
func (s *Store) Close() {
	if !s.isClosed.CompareAndSwap(false, true) {
		return
	}
	s.sched.close()
}

// expire is the scheduler callback. It removes the entry only if the
// sequence number still matches, so a key re-sealed in the meantime
// keeps its fresh entry.
func (s *Store) expire(ns Namespace, key string, seq uint64) {
	s.mx.Lock()
	defer s.mx.Unlock()

	e, ok := s.spaces[ns][key]
	if !ok || e.seq != seq {
		return
	}
	delete(s.spaces[ns], key)
	metrics.SealExpirations.WithLabelValues(string(ns)).Inc()
	log.Debugf("seal: expired: %s %s", ns, key)
}
