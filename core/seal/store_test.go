// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package seal

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lumichat/warden/domain"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

const (
	userTestTTL = time.Minute
	addrTestTTL = 2 * time.Minute
)

type SealStoreSuite struct {
	suite.Suite

	clk   *clock.Mock
	store *Store
}

func (s *SealStoreSuite) SetupTest() {
	s.clk = clock.NewMock()
	s.store = NewStore(s.clk, map[Namespace]time.Duration{
		SealedUsers: userTestTTL,
		SealedAddrs: addrTestTTL,
	})
}

func (s *SealStoreSuite) TearDownTest() {
	s.store.Close()
}

// entryCount reads the raw map size, bypassing the lazy deadline
// filter, so tests can tell a fired removal from a masked entry.
func (s *SealStoreSuite) entryCount(ns Namespace) int {
	s.store.mx.RLock()
	defer s.store.mx.RUnlock()
	return len(s.store.spaces[ns])
}

func (s *SealStoreSuite) TestContainsLifecycle() {
	s.Require().NoError(s.store.Insert(SealedUsers, "alice"))

	s.True(s.store.Contains(SealedUsers, "alice"))
	s.False(s.store.Contains(SealedAddrs, "alice"), "namespaces must not share entries")

	s.clk.Add(userTestTTL)

	s.False(s.store.Contains(SealedUsers, "alice"))
	s.Require().Eventually(func() bool {
		return s.entryCount(SealedUsers) == 0
	}, time.Second, 5*time.Millisecond, "expired entry must be physically removed")
}

func (s *SealStoreSuite) TestDuplicateInsertRejected() {
	s.Require().NoError(s.store.Insert(SealedUsers, "bob"))

	err := s.store.Insert(SealedUsers, "bob")
	s.Require().ErrorIs(err, domain.ErrAlreadySealed)

	s.Equal(1, s.store.Count(SealedUsers))

	until, ok := s.store.Expiry(SealedUsers, "bob")
	s.Require().True(ok)
	s.Equal(s.clk.Now().Add(userTestTTL), until, "duplicate insert must not extend the seal")
}

func (s *SealStoreSuite) TestTwoRacingInserts() {
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.Insert(SealedAddrs, "203.0.113.7")
		}()
	}
	wg.Wait()
	close(errs)

	var sealed, rejected int
	for err := range errs {
		if err == nil {
			sealed++
			continue
		}
		s.ErrorIs(err, domain.ErrAlreadySealed)
		rejected++
	}
	s.Equal(1, sealed, "exactly one insert must win")
	s.Equal(1, rejected)
	s.Equal(1, s.store.Count(SealedAddrs))
}

func (s *SealStoreSuite) TestRemoveIdempotent() {
	s.Require().NoError(s.store.Insert(SealedUsers, "carol"))

	s.store.Remove(SealedUsers, "carol")
	s.False(s.store.Contains(SealedUsers, "carol"))

	s.store.Remove(SealedUsers, "carol")
	s.store.Remove(SealedUsers, "never-inserted")

	s.Require().NoError(s.store.Insert(SealedUsers, "carol"), "removed key must be insertable again")
}

func (s *SealStoreSuite) TestStaleRemovalSkipsReseal() {
	s.Require().NoError(s.store.Insert(SealedUsers, "dave"))

	s.clk.Add(10 * time.Second)
	s.store.Remove(SealedUsers, "dave")
	s.Require().NoError(s.store.Insert(SealedUsers, "dave"))

	// Cross the first deadline only. The queued removal from the first
	// insert pops here and must not touch the second entry.
	s.clk.Add(55 * time.Second)
	time.Sleep(50 * time.Millisecond)
	s.True(s.store.Contains(SealedUsers, "dave"), "stale removal must not drop the fresh seal")

	s.clk.Add(10 * time.Second)
	s.Require().Eventually(func() bool {
		return s.entryCount(SealedUsers) == 0
	}, time.Second, 5*time.Millisecond)
}

func (s *SealStoreSuite) TestNamespaceTTLsIndependent() {
	s.Require().NoError(s.store.Insert(SealedUsers, "erin"))
	s.Require().NoError(s.store.Insert(SealedAddrs, "198.51.100.4"))

	s.clk.Add(userTestTTL)

	s.False(s.store.Contains(SealedUsers, "erin"))
	s.True(s.store.Contains(SealedAddrs, "198.51.100.4"))

	s.clk.Add(addrTestTTL - userTestTTL)

	s.False(s.store.Contains(SealedAddrs, "198.51.100.4"))
	s.Require().Eventually(func() bool {
		return s.entryCount(SealedUsers)+s.entryCount(SealedAddrs) == 0
	}, time.Second, 5*time.Millisecond)
}

func (s *SealStoreSuite) TestKeysSnapshotExcludesExpired() {
	s.Require().NoError(s.store.Insert(SealedUsers, "frank"))

	s.clk.Add(30 * time.Second)
	s.Require().NoError(s.store.Insert(SealedUsers, "grace"))

	s.ElementsMatch([]string{"frank", "grace"}, s.store.Keys(SealedUsers))

	// frank's deadline passes, grace has 30s left.
	s.clk.Add(30 * time.Second)
	s.Equal([]string{"grace"}, s.store.Keys(SealedUsers))
	s.Equal(1, s.store.Count(SealedUsers))

	entries := s.store.Entries(SealedUsers)
	s.Require().Len(entries, 1)
	s.Equal(s.clk.Now().Add(30*time.Second), entries["grace"])
}

func (s *SealStoreSuite) TestManyEntriesDrain() {
	addrs := []string{"10.1.0.1", "10.1.0.2", "10.1.0.3", "10.1.0.4", "10.1.0.5"}
	for _, addr := range addrs {
		s.Require().NoError(s.store.Insert(SealedAddrs, addr))
		s.clk.Add(10 * time.Second)
	}
	s.Equal(len(addrs), s.store.Count(SealedAddrs))

	// One jump past every deadline drains the whole queue.
	s.clk.Add(addrTestTTL)
	s.Require().Eventually(func() bool {
		return s.entryCount(SealedAddrs) == 0
	}, time.Second, 5*time.Millisecond)
}

func (s *SealStoreSuite) TestInsertValidation() {
	s.ErrorIs(s.store.Insert(SealedUsers, ""), domain.ErrEmptyInput)
	s.ErrorIs(s.store.Insert(Namespace("bogus"), "key"), ErrUnknownNamespace)

	s.store.Close()
	s.ErrorIs(s.store.Insert(SealedUsers, "late"), ErrStoreClosed)
	s.store.Close() // second close is a no-op
}

func TestSealStoreSuite(t *testing.T) {
	defer goleak.VerifyNone(t)
	suite.Run(t, new(SealStoreSuite))
}
