// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package server

import (
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/lumichat/warden/core/emoticon"
	"github.com/lumichat/warden/core/registry"
	"github.com/lumichat/warden/core/seal"
	"github.com/lumichat/warden/core/token"
	"github.com/lumichat/warden/database"
	local "github.com/lumichat/warden/database/local-store"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	"github.com/lumichat/warden/json"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct{}

func (staticProvider) FetchToken(context.Context) (string, time.Duration, error) {
	return "tok-1", time.Hour, nil
}

const galleryPage = `<html><body><img src="/static/smile.png" alt="smile"></body></html>`

type fixtures struct {
	srv    *Server
	reg    *registry.Registry
	users  *database.UserRepo
	groups *database.GroupRepo
}

func newTestServer(t *testing.T) *fixtures {
	t.Helper()

	db, err := local.New("", local.DefaultOptions().WithInMemory(true))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, database.NewAuthRepo(db).Authenticate(rand.Text(), rand.Text()))

	gallery := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, galleryPage)
	}))
	t.Cleanup(gallery.Close)

	store := seal.NewStore(clock.New(), map[seal.Namespace]time.Duration{
		seal.SealedUsers: time.Hour,
		seal.SealedAddrs: time.Hour,
	})
	t.Cleanup(store.Close)

	users := database.NewUserRepo(db)
	groups := database.NewGroupRepo(db)
	reg := registry.NewRegistry("0.0.0")
	t.Cleanup(reg.Close)

	srv := New("127.0.0.1:0", Deps{
		Version:     semver.MustParse("0.0.0"),
		DB:          db,
		Users:       users,
		Groups:      groups,
		Uploads:     database.NewUploadRepo(db),
		Seals:       seal.NewService(store, users, reg),
		Sockets:     reg,
		Tokens:      token.NewCache(clock.New(), staticProvider{}, time.Second),
		Emoticons:   emoticon.NewScraper(gallery.URL, 8, time.Minute),
		UploadLimit: "1KiB",
	})
	return &fixtures{srv: srv, reg: reg, users: users, groups: groups}
}

func (f *fixtures) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func seedUser(t *testing.T, users *database.UserRepo, username string) domain.User {
	t.Helper()

	user, err := users.Create(domain.User{
		Id:       ulid.Make().String(),
		Username: username,
		Nickname: "nick-" + username,
	})
	require.NoError(t, err)
	return user
}

func TestSealUserFlow(t *testing.T) {
	f := newTestServer(t)
	user := seedUser(t, f.users, "eve")

	rec := f.do(http.MethodPost, "/internal/moderation/seals/user", `{"username":"eve"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(event.Accepted), rec.Body.String())

	// a second seal is a conflict
	rec = f.do(http.MethodPost, "/internal/moderation/seals/user", `{"username":"eve"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/internal/moderation/seals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list event.SealListResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Seals, 1)
	assert.Equal(t, domain.SealKindUser, list.Seals[0].Kind)
	assert.Equal(t, "eve", list.Seals[0].Value)

	rec = f.do(http.MethodGet, "/internal/users/"+user.Id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched domain.User
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.True(t, fetched.IsSealed)
}

func TestSealUserRouteUnknownUser(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodPost, "/internal/moderation/seals/user", `{"username":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSealAddrRouteRules(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodPost, "/internal/moderation/seals/addr", `{"addr":"203.0.113.9"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// httptest requests originate from 192.0.2.1
	rec = f.do(http.MethodPost, "/internal/moderation/seals/addr", `{"addr":"192.0.2.1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/internal/moderation/seals/addr", `{"addr":"127.0.0.1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUsersRoute(t *testing.T) {
	f := newTestServer(t)
	seedUser(t, f.users, "alice")
	seedUser(t, f.users, "albert")
	seedUser(t, f.users, "bob")

	rec := f.do(http.MethodGet, "/internal/users?query=al", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp event.UsersResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Users, 2)
}

func TestGroupMembershipRoutes(t *testing.T) {
	f := newTestServer(t)

	group, err := f.groups.Create(domain.Group{Name: "gophers", OwnerId: "owner-1"})
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/internal/groups/"+group.Id+"/members", `{"user_id":"user-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(event.Accepted), rec.Body.String())

	// joining twice is a conflict
	rec = f.do(http.MethodPost, "/internal/groups/"+group.Id+"/members", `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/internal/groups/"+group.Id+"/members", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var members event.GroupMembersResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &members))
	assert.Equal(t, uint64(2), members.Total, "the owner counts as a member")
	assert.ElementsMatch(t, []string{"owner-1", "user-1"}, members.Members)

	rec = f.do(http.MethodDelete, "/internal/groups/"+group.Id+"/members/user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/internal/groups/"+group.Id+"/members", "")
	require.Equal(t, http.StatusOK, rec.Code)
	members = event.GroupMembersResponse{}
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &members))
	assert.Equal(t, uint64(1), members.Total)
	assert.ElementsMatch(t, []string{"owner-1"}, members.Members)

	rec = f.do(http.MethodPost, "/internal/groups/ghost/members", `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenRoute(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodGet, "/internal/token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp event.TokenResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-1", resp.Token)
}

func TestEmoticonsRoute(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodGet, "/internal/emoticons", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp event.EmoticonsResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Emoticons, 1)
	assert.Equal(t, "smile", resp.Emoticons[0].Tag)
}

func TestUploadRoutes(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodPost, "/internal/upload?user_id=user-1", `{"file":"image/png,aGVsbG8="}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var uploaded event.UploadFileResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &uploaded))
	require.NotEmpty(t, uploaded.Key)

	rec = f.do(http.MethodGet, "/internal/files/"+uploaded.Key+"?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched event.GetFileResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "image/png,aGVsbG8=", fetched.File)

	rec = f.do(http.MethodGet, "/internal/files/ghost?user_id=user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRouteBodyLimit(t *testing.T) {
	f := newTestServer(t)

	oversized := `{"file":"image/png,` + strings.Repeat("QUFB", 600) + `"}`
	rec := f.do(http.MethodPost, "/internal/upload?user_id=user-1", oversized)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatusRoute(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodGet, "/internal/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp event.StatusResponse
	require.NoError(t, json.JSON.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Version)
	assert.Equal(t, "0.0.0", resp.Version.String())
	assert.Zero(t, resp.UsersOnline)
	assert.NotEmpty(t, resp.MemoryStats)
}

func TestMetricsRoute(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSealUserDropsLiveSocket(t *testing.T) {
	f := newTestServer(t)
	user := seedUser(t, f.users, "mallory")

	httpSrv := httptest.NewServer(f.srv.Handler())
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/gateway?user_id=" + user.Id
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return f.reg.IsOnline(user.Id) },
		time.Second, 10*time.Millisecond)

	sealResp, err := http.Post(
		httpSrv.URL+"/internal/moderation/seals/user",
		echo.MIMEApplicationJSON,
		strings.NewReader(`{"username":"mallory"}`),
	)
	require.NoError(t, err)
	defer sealResp.Body.Close()
	require.Equal(t, http.StatusOK, sealResp.StatusCode)

	// the notice arrives before the socket dies
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg event.Message
	require.NoError(t, json.JSON.Unmarshal(frame, &msg))
	assert.Equal(t, registry.SealedNoticeType, msg.Type)

	var notice event.SealedNoticeBody
	require.NoError(t, json.JSON.Unmarshal(msg.Body, &notice))
	assert.Equal(t, "account sealed by moderation", notice.Reason)

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	require.Eventually(t, func() bool { return !f.reg.IsOnline(user.Id) },
		time.Second, 10*time.Millisecond)
}
