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

// Package token caches the synthesis provider credential so request
// handlers do not refetch it on every call.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "synthesis-token"

type Provider interface {
	FetchToken(ctx context.Context) (value string, ttl time.Duration, err error)
}

// Cache holds the single process-wide token record. The record is
// valid until fetchedAt + providerTTL - margin; the margin keeps a
// token from being used right at its real expiry. A failed refresh
// leaves the previous record in place, the next read retries.
type Cache struct {
	clk      clock.Clock
	provider Provider
	margin   time.Duration

	group singleflight.Group

	mx         sync.RWMutex
	value      string
	validUntil time.Time
}

func NewCache(clk clock.Clock, provider Provider, margin time.Duration) *Cache {
	return &Cache{clk: clk, provider: provider, margin: margin}
}

// Token returns the cached credential, refreshing it thru the
// provider when the record is absent or stale. Concurrent stale reads
// share one fetch.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if value, ok := c.fresh(); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(refreshKey, func() (any, error) {
		// the flight we waited behind may have refreshed already
		if value, ok := c.fresh(); ok {
			return value, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (c *Cache) fresh() (string, bool) {
	c.mx.RLock()
	defer c.mx.RUnlock()

	if c.value == "" || !c.clk.Now().Before(c.validUntil) {
		return "", false
	}
	return c.value, true
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	value, ttl, err := c.provider.FetchToken(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeError).Inc()
		return "", fmt.Errorf("%w: %v", domain.ErrTokenFetch, err)
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeOK).Inc()

	lifetime := ttl - c.margin
	if lifetime <= 0 {
		log.Warnf("token: provider lifetime %s is within the safety margin %s", ttl, c.margin)
	}

	c.mx.Lock()
	c.value = value
	c.validUntil = c.clk.Now().Add(lifetime)
	c.mx.Unlock()

	log.Debugf("token: refreshed, valid for %s", lifetime)
	return value, nil
}
