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
	"container/heap"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// removal is a single pending expiration. Entries are never deleted
// from the queue ahead of time; a removal whose sequence number no
// longer matches the live store entry is discarded when it pops.
type removal struct {
	ns       Namespace
	key      string
	seq      uint64
	deadline time.Time
}

// delayQueue is a min-heap of pending removals, earliest deadline
// first. Implements container/heap.Interface.
type delayQueue []removal

func (q delayQueue) Len() int           { return len(q) }
func (q delayQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q delayQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *delayQueue) Push(x any)        { *q = append(*q, x.(removal)) }
func (q *delayQueue) Pop() any {
	old := *q
	r := old[len(old)-1]
	*q = old[:len(old)-1]
	return r
}

// scheduler drains the delay queue with a single goroutine and a
// single alarm armed for the earliest deadline, however many entries
// are queued. Removals fire at or after their deadline, never before.
type scheduler struct {
	clk    clock.Clock
	expire func(ns Namespace, key string, seq uint64)

	mx    sync.Mutex
	queue delayQueue
	alarm *clock.Timer

	wakeChan chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}
}

func newScheduler(clk clock.Clock, expire func(Namespace, string, uint64)) *scheduler {
	s := &scheduler{
		clk:      clk,
		expire:   expire,
		queue:    make(delayQueue, 0),
		wakeChan: make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go s.run()
	return s
}

// arm queues a one-shot removal for the given deadline. The sequence
// number pins the removal to the exact store entry it was armed for.
func (s *scheduler) arm(ns Namespace, key string, seq uint64, deadline time.Time) {
	s.mx.Lock()
	defer s.mx.Unlock()

	heap.Push(&s.queue, removal{ns: ns, key: key, seq: seq, deadline: deadline})
	if s.queue[0].seq == seq { // new earliest deadline
		s.rearmLocked(s.clk.Now())
	}
}

func (s *scheduler) run() {
	defer close(s.doneChan)
	for {
		select {
		case <-s.stopChan:
			s.mx.Lock()
			if s.alarm != nil {
				s.alarm.Stop()
				s.alarm = nil
			}
			s.mx.Unlock()
			return
		case <-s.wakeChan:
			for _, r := range s.collectDue() {
				s.expire(r.ns, r.key, r.seq)
			}
		}
	}
}

// collectDue pops every removal whose deadline has passed and points
// the alarm at the next one.
func (s *scheduler) collectDue() []removal {
	s.mx.Lock()
	defer s.mx.Unlock()

	now := s.clk.Now()

	var due []removal
	for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
		due = append(due, heap.Pop(&s.queue).(removal))
	}
	s.rearmLocked(now)
	return due
}

// rearmLocked resets the alarm for the earliest queued deadline. An
// already due head wakes the drain loop directly instead of arming a
// timer in the past. Must be called with mx held.
func (s *scheduler) rearmLocked(now time.Time) {
	if s.alarm != nil {
		s.alarm.Stop()
		s.alarm = nil
	}
	if len(s.queue) == 0 {
		return
	}

	d := s.queue[0].deadline.Sub(now)
	if d <= 0 {
		s.notify()
		return
	}
	s.alarm = s.clk.AfterFunc(d, s.notify)
}

// notify is a non-blocking wake of the drain loop. Safe to call from
// alarm callbacks: it takes no locks.
func (s *scheduler) notify() {
	select {
	case s.wakeChan <- struct{}{}:
	default:
	}
}

func (s *scheduler) close() {
	close(s.stopChan)
	<-s.doneChan
}
