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

package local_store

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	keySeparator = "/"
	idSeparator  = ":"

	// FixedKey marks pointer keys. Iterators skip any key containing it.
	FixedKey = "FIXED"
)

type RangePrefix string

const FixedRangeKey = RangePrefix(FixedKey)

// DatabaseKey is a sortable slash-separated key. Range segments keep
// lexicographic order, id segments are joined with ':' so a key stays
// a valid seek position for cursor pagination.
type DatabaseKey string

func (k DatabaseKey) String() string {
	return string(k)
}

func (k DatabaseKey) Bytes() []byte {
	return []byte(k)
}

func (k DatabaseKey) IsEmpty() bool {
	return len(k) == 0
}

type PrefixBuilder struct {
	sb strings.Builder
}

func NewPrefixBuilder(namespace string) *PrefixBuilder {
	b := new(PrefixBuilder)
	b.sb.WriteString(namespace)
	return b
}

func (b *PrefixBuilder) AddSubPrefix(sub string) *PrefixBuilder {
	b.sb.WriteString(keySeparator)
	b.sb.WriteString(sub)
	return b
}

func (b *PrefixBuilder) AddRootID(id string) *PrefixBuilder {
	b.sb.WriteString(keySeparator)
	b.sb.WriteString(id)
	return b
}

func (b *PrefixBuilder) AddRange(r RangePrefix) *PrefixBuilder {
	b.sb.WriteString(keySeparator)
	b.sb.WriteString(string(r))
	return b
}

// AddReversedTimestamp appends a fixed-width inverted nanosecond
// timestamp, so ascending key order means newest first.
func (b *PrefixBuilder) AddReversedTimestamp(t time.Time) *PrefixBuilder {
	reversed := math.MaxInt64 - t.UnixNano()
	padded := strconv.FormatInt(reversed, 10)
	if pad := 19 - len(padded); pad > 0 {
		padded = strings.Repeat("0", pad) + padded
	}
	b.sb.WriteString(keySeparator)
	b.sb.WriteString(padded)
	return b
}

func (b *PrefixBuilder) AddParentId(id string) *PrefixBuilder {
	b.sb.WriteString(idSeparator)
	b.sb.WriteString(id)
	return b
}

func (b *PrefixBuilder) AddId(id string) *PrefixBuilder {
	b.sb.WriteString(idSeparator)
	b.sb.WriteString(id)
	return b
}

func (b *PrefixBuilder) Build() DatabaseKey {
	return DatabaseKey(b.sb.String())
}
