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
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/core/sysinfo"
	"github.com/lumichat/warden/event"
)

type StatsReader interface {
	Stats() map[string]string
}

type OnlineCounter interface {
	OnlineCount() int
}

type SealCounter interface {
	Counts() (users, addrs int)
}

// NewGetStatusHandler reports a point-in-time snapshot of the process:
// version, start time, store stats and moderation counters.
func NewGetStatusHandler(
	version *semver.Version, startTime time.Time,
	db StatsReader, presence OnlineCounter, seals SealCounter,
) echo.HandlerFunc {
	if db == nil || presence == nil || seals == nil {
		panic("status handler called with nil dependencies")
	}

	return func(c echo.Context) error {
		sealedUsers, sealedAddrs := seals.Counts()
		bytesSent, bytesReceived := sysinfo.GetNetworkIO()

		return c.JSON(http.StatusOK, event.StatusResponse{
			Version:   version,
			StartTime: startTime.Format(time.DateTime),

			DatabaseStats: db.Stats(),
			MemoryStats:   sysinfo.GetMemoryStats(),
			CPUStats:      sysinfo.GetCPUStats(),

			BytesSent:     bytesSent,
			BytesReceived: bytesReceived,

			UsersOnline: presence.OnlineCount(),
			SealedUsers: sealedUsers,
			SealedAddrs: sealedAddrs,
		})
	}
}
