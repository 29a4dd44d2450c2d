// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	"github.com/lumichat/warden/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserSealer struct {
	user   domain.User
	until  time.Time
	err    error
	sealed []string
}

func (f *fakeUserSealer) SealUser(username string) (domain.User, error) {
	f.sealed = append(f.sealed, username)
	if f.err != nil {
		return domain.User{}, f.err
	}
	return f.user, nil
}

func (f *fakeUserSealer) SealedUntil(domain.ID) (time.Time, bool) {
	return f.until, !f.until.IsZero()
}

type fakeAddrSealer struct {
	err       error
	addr      string
	requester string
}

func (f *fakeAddrSealer) SealAddr(addr, requesterAddr string) error {
	f.addr = addr
	f.requester = requesterAddr
	return f.err
}

type fakeBulkSealer struct {
	sealed, total int
	err           error
	userId        domain.ID
}

func (f *fakeBulkSealer) SealUserAddrs(userId domain.ID, _ string) (int, int, error) {
	f.userId = userId
	return f.sealed, f.total, f.err
}

type fakeSealLister struct {
	records []domain.SealRecord
	err     error
}

func (f *fakeSealLister) SealedList() ([]domain.SealRecord, error) {
	return f.records, f.err
}

type fakeNotifier struct {
	userId domain.ID
	notice event.SealedNoticeBody
	calls  int
}

func (f *fakeNotifier) DropUser(userId domain.ID, notice event.SealedNoticeBody) int {
	f.calls++
	f.userId = userId
	f.notice = notice
	return 2
}

func TestSealUserHandler(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	svc := &fakeUserSealer{
		user:  domain.User{Id: "user-1", Username: "eve"},
		until: until,
	}
	sockets := &fakeNotifier{}

	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/user", `{"username":"eve"}`)
	invoke(NewSealUserHandler(svc, sockets), c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(event.Accepted), rec.Body.String())
	assert.Equal(t, []string{"eve"}, svc.sealed)

	require.Equal(t, 1, sockets.calls)
	assert.Equal(t, "user-1", sockets.userId)
	assert.Equal(t, "account sealed by moderation", sockets.notice.Reason)
	assert.True(t, until.Equal(sockets.notice.ExpiresAt))
}

func TestSealUserHandlerUnknownUser(t *testing.T) {
	svc := &fakeUserSealer{err: domain.ErrUserNotFound}
	sockets := &fakeNotifier{}

	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/user", `{"username":"ghost"}`)
	invoke(NewSealUserHandler(svc, sockets), c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, sockets.calls, "no sockets may drop when the seal failed")
}

func TestSealUserHandlerBadBody(t *testing.T) {
	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/user", `{"username"`)
	invoke(NewSealUserHandler(&fakeUserSealer{}, &fakeNotifier{}), c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSealAddrHandler(t *testing.T) {
	svc := &fakeAddrSealer{}

	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/addr", `{"addr":"203.0.113.7"}`)
	invoke(NewSealAddrHandler(svc), c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(event.Accepted), rec.Body.String())
	assert.Equal(t, "203.0.113.7", svc.addr)
	// httptest requests come from 192.0.2.1
	assert.Equal(t, "192.0.2.1", svc.requester)
}

func TestSealAddrHandlerViolation(t *testing.T) {
	svc := &fakeAddrSealer{err: domain.ErrSelfSeal}

	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/addr", `{"addr":"192.0.2.1"}`)
	invoke(NewSealAddrHandler(svc), c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrSelfSeal.Error(), decodeError(t, rec).Message)
}

func TestSealUserAddrsHandler(t *testing.T) {
	svc := &fakeBulkSealer{sealed: 2, total: 3}

	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/user-addrs", `{"user_id":"user-9"}`)
	invoke(NewSealUserAddrsHandler(svc), c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-9", svc.userId)

	var resp event.SealUserAddrsResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-9", resp.UserId)
	assert.Equal(t, 2, resp.SealedCount)
	assert.Equal(t, 3, resp.TotalCount)
}

func TestSealUserAddrsHandlerConflict(t *testing.T) {
	svc := &fakeBulkSealer{err: domain.ErrAllAlreadySealed}

	c, rec := newContext(t, http.MethodPost, "/internal/moderation/seals/user-addrs", `{"user_id":"user-9"}`)
	invoke(NewSealUserAddrsHandler(svc), c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	// the error response carries no counts
	assert.NotContains(t, rec.Body.String(), "sealed_count")
}

func TestSealListHandler(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC()
	svc := &fakeSealLister{records: []domain.SealRecord{
		{Kind: domain.SealKindUser, Value: "eve", ExpiresAt: expires},
		{Kind: domain.SealKindIP, Value: "203.0.113.7", ExpiresAt: expires},
	}}

	c, rec := newContext(t, http.MethodGet, "/internal/moderation/seals", "")
	invoke(NewSealListHandler(svc), c)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp event.SealListResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Seals, 2)
	assert.Equal(t, domain.SealKindUser, resp.Seals[0].Kind)
	assert.Equal(t, "eve", resp.Seals[0].Value)
}

func TestSealHandlersNilDeps(t *testing.T) {
	assert.Panics(t, func() { NewSealUserHandler(nil, nil) })
	assert.Panics(t, func() { NewSealAddrHandler(nil) })
	assert.Panics(t, func() { NewSealUserAddrsHandler(nil) })
	assert.Panics(t, func() { NewSealListHandler(nil) })
}
