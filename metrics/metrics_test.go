// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposition(t *testing.T) {
	SealsTotal.WithLabelValues("users").Inc()
	SealRejections.WithLabelValues(ReasonAlreadySealed).Inc()
	TokenRefreshes.WithLabelValues(OutcomeOK).Inc()
	EmoticonReads.WithLabelValues(OutcomeMiss).Inc()
	GatewayConnections.Inc()
	RequestDuration.WithLabelValues(http.MethodPost, "/internal/moderation/seals/user", "200").Observe(0.01)

	RegisterOnlineGauge(func() int { return 3 })
	RegisterSealGauges(func() (int, int) { return 2, 5 })

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `warden_seal_seals_total{namespace="users"} 1`)
	assert.Contains(t, body, `warden_seal_rejections_total{reason="already_sealed"} 1`)
	assert.Contains(t, body, `warden_token_refreshes_total{outcome="ok"} 1`)
	assert.Contains(t, body, `warden_emoticon_reads_total{outcome="miss"} 1`)
	assert.Contains(t, body, `warden_gateway_connections_total 1`)
	assert.Contains(t, body, `warden_gateway_online_users 3`)
	assert.Contains(t, body, `warden_seal_active{namespace="addrs"} 5`)
	assert.Contains(t, body, `warden_seal_active{namespace="users"} 2`)
	assert.Contains(t, body, "warden_http_request_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines", "runtime collectors must ride along")

	families, err := Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["warden_http_request_duration_seconds"])
	assert.True(t, names["warden_seal_seals_total"])
}
