// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package registry

import (
	stdjson "encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/event"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type fakeConn struct {
	mx       sync.Mutex
	frames   [][]byte
	isClosed bool
	failing  bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.failing {
		return domain.WardenError("write failed")
	}
	if messageType != websocket.TextMessage {
		return domain.WardenError("unexpected frame type")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.isClosed = true
	return nil
}

func (f *fakeConn) sent() [][]byte {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeConn) closed() bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.isClosed
}

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry("0.0.0")
}

func (s *RegistrySuite) TearDownTest() {
	s.registry.Close()
}

func (s *RegistrySuite) TestRegisterAndQuery() {
	_, err := s.registry.Register("user-1", "10.0.0.1", &fakeConn{})
	s.Require().NoError(err)
	_, err = s.registry.Register("user-1", "10.0.0.2", &fakeConn{})
	s.Require().NoError(err)
	_, err = s.registry.Register("user-1", "10.0.0.2", &fakeConn{})
	s.Require().NoError(err)
	_, err = s.registry.Register("user-2", "10.0.0.3", &fakeConn{})
	s.Require().NoError(err)

	s.True(s.registry.IsOnline("user-1"))
	s.True(s.registry.IsOnline("user-2"))
	s.False(s.registry.IsOnline("user-3"))
	s.Equal(2, s.registry.OnlineCount())

	addrs := s.registry.UserAddrs("user-1")
	s.ElementsMatch([]string{"10.0.0.1", "10.0.0.2"}, addrs, "duplicate addresses must collapse")
	s.Empty(s.registry.UserAddrs("user-3"))
}

func (s *RegistrySuite) TestRegisterValidation() {
	_, err := s.registry.Register("", "10.0.0.1", &fakeConn{})
	s.ErrorIs(err, domain.ErrEmptyInput)

	_, err = s.registry.Register("user-1", "10.0.0.1", nil)
	s.ErrorIs(err, domain.ErrEmptyInput)
}

func (s *RegistrySuite) TestUnregisterIdempotent() {
	sessionId, err := s.registry.Register("user-1", "10.0.0.1", &fakeConn{})
	s.Require().NoError(err)

	s.registry.Unregister("user-1", sessionId)
	s.False(s.registry.IsOnline("user-1"))
	s.Equal(0, s.registry.OnlineCount())

	s.registry.Unregister("user-1", sessionId)
	s.registry.Unregister("nobody", "no-session")
}

func (s *RegistrySuite) TestPushEnvelope() {
	conn := &fakeConn{}
	_, err := s.registry.Register("user-1", "10.0.0.1", conn)
	s.Require().NoError(err)

	notice := event.SealedNoticeBody{
		Reason:    "sealed by operator",
		ExpiresAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	delivered, err := s.registry.Push("user-1", SealedNoticeType, notice)
	s.Require().NoError(err)
	s.Equal(1, delivered)

	frames := conn.sent()
	s.Require().Len(frames, 1)

	// Decode with the standard library: the wire frame has to be plain
	// JSON, with the body a nested object rather than an encoded blob.
	var msg event.Message
	s.Require().NoError(stdjson.Unmarshal(frames[0], &msg))
	s.Equal("user-1", msg.UserId)
	s.Equal(SealedNoticeType, msg.Type)
	s.Equal("0.0.0", msg.Version)
	s.NotEmpty(msg.MessageId)
	s.False(msg.Timestamp.IsZero())

	var got event.SealedNoticeBody
	s.Require().NoError(stdjson.Unmarshal(msg.Body, &got))
	s.Equal(notice.Reason, got.Reason)
	s.True(notice.ExpiresAt.Equal(got.ExpiresAt))
}

func (s *RegistrySuite) TestPushOfflineUser() {
	delivered, err := s.registry.Push("nobody", SealedNoticeType, event.SealedNoticeBody{})
	s.NoError(err)
	s.Equal(0, delivered)
}

func (s *RegistrySuite) TestPushSkipsFailingSocket() {
	healthy := &fakeConn{}
	broken := &fakeConn{failing: true}
	_, err := s.registry.Register("user-1", "10.0.0.1", healthy)
	s.Require().NoError(err)
	_, err = s.registry.Register("user-1", "10.0.0.2", broken)
	s.Require().NoError(err)

	delivered, err := s.registry.Push("user-1", SealedNoticeType, event.SealedNoticeBody{})
	s.Require().NoError(err)
	s.Equal(1, delivered, "a dead socket must not block the rest")
	s.Len(healthy.sent(), 1)
}

func (s *RegistrySuite) TestDropUser() {
	first := &fakeConn{}
	second := &fakeConn{}
	_, err := s.registry.Register("user-1", "10.0.0.1", first)
	s.Require().NoError(err)
	_, err = s.registry.Register("user-1", "10.0.0.2", second)
	s.Require().NoError(err)

	notice := event.SealedNoticeBody{Reason: "sealed", ExpiresAt: time.Now().Add(time.Hour)}
	dropped := s.registry.DropUser("user-1", notice)

	s.Equal(2, dropped)
	s.False(s.registry.IsOnline("user-1"))
	s.True(first.closed())
	s.True(second.closed())
	s.Len(first.sent(), 1, "the notice must go out before the socket dies")
	s.Len(second.sent(), 1)

	s.Equal(0, s.registry.DropUser("user-1", notice))
}

func (s *RegistrySuite) TestClosedRegistryRejects() {
	conn := &fakeConn{}
	_, err := s.registry.Register("user-1", "10.0.0.1", conn)
	s.Require().NoError(err)

	s.registry.Close()
	s.True(conn.closed())

	_, err = s.registry.Register("user-2", "10.0.0.2", &fakeConn{})
	s.ErrorIs(err, ErrRegistryClosed)

	_, err = s.registry.Push("user-1", SealedNoticeType, event.SealedNoticeBody{})
	s.ErrorIs(err, ErrRegistryClosed)

	// second close is a no-op
	s.registry.Close()
}

func TestRegistrySuite(t *testing.T) {
	defer goleak.VerifyNone(t)
	suite.Run(t, new(RegistrySuite))
}
