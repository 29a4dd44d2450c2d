// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	"github.com/lumichat/warden/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenReader struct {
	token string
	err   error
	calls int
}

func (f *fakeTokenReader) Token(context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

func TestGetTokenHandler(t *testing.T) {
	cache := &fakeTokenReader{token: "tok-abc123"}

	c, rec := newContext(t, http.MethodGet, "/internal/synthesis/token", "")
	invoke(NewGetTokenHandler(cache), c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.calls)

	var resp event.TokenResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-abc123", resp.Token)
}

func TestGetTokenHandlerFetchFailure(t *testing.T) {
	cache := &fakeTokenReader{err: domain.ErrTokenFetch}

	c, rec := newContext(t, http.MethodGet, "/internal/synthesis/token", "")
	invoke(NewGetTokenHandler(cache), c)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, domain.ErrTokenFetch.Error(), decodeError(t, rec).Message)
}

func TestGetTokenHandlerNilCachePanics(t *testing.T) {
	assert.Panics(t, func() { NewGetTokenHandler(nil) })
}
