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

// Package sysinfo reports process and host runtime figures for the
// operator status endpoint.
package sysinfo

import (
	"runtime"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/cpu"
	psnet "github.com/shirou/gopsutil/v3/net"
	log "github.com/sirupsen/logrus"
)

func GetMemoryStats() map[string]string {
	memStats := runtime.MemStats{}
	runtime.ReadMemStats(&memStats)

	return map[string]string{
		"heap":    units.HumanSize(float64(memStats.Alloc)),
		"stack":   units.HumanSize(float64(memStats.StackInuse)),
		"last_gc": time.Unix(0, int64(memStats.LastGC)).Format(time.DateTime),
	}
}

func GetCPUStats() map[string]string {
	stats := map[string]string{
		"num": strconv.Itoa(runtime.NumCPU()),
	}

	// interval 0 reads usage since the previous call, without blocking
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		log.Errorf("sysinfo: could not get CPU usage percent: %v", err)
		return stats
	}
	if len(percentages) == 0 {
		return stats
	}
	stats["usage"] = strconv.FormatFloat(percentages[0], 'f', -1, 64)
	return stats
}

func GetNetworkIO() (bytesSent int64, bytesRecv int64) {
	ioCounters, err := psnet.IOCounters(false)
	if err != nil {
		log.Errorf("sysinfo: could not get network io counters: %v", err)
		return 0, 0
	}
	if len(ioCounters) == 0 {
		return 0, 0
	}
	stats := ioCounters[0]
	return int64(stats.BytesSent), int64(stats.BytesRecv)
}
