// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

//nolint:all
package database

import (
	"crypto/rand"
	"testing"
	"time"

	local "github.com/lumichat/warden/database/local-store"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

const testFileData = "image/png,iVBORw0KGgoAAAANSUhEUg=="

type UploadRepoSuite struct {
	suite.Suite

	repo *UploadRepo
	db   *local.DB
}

func (s *UploadRepoSuite) SetupSuite() {
	db, err := local.New("", local.DefaultOptions().WithInMemory(true))
	s.Require().NoError(err)

	s.db = db

	authRepo := NewAuthRepo(db)
	err = authRepo.Authenticate(rand.Text(), rand.Text())
	s.Require().NoError(err)

	s.repo = NewUploadRepo(db)
}

func (s *UploadRepoSuite) TearDownSuite() {
	s.db.Close()
}

func (s *UploadRepoSuite) TestSetAndGetFile() {
	userID := ulid.Make().String()

	key, err := s.repo.SetFile(userID, Base64File(testFileData))
	s.NoError(err)
	s.NotEmpty(key)

	again, err := s.repo.SetFile(userID, Base64File(testFileData))
	s.NoError(err)
	s.Equal(key, again, "content addressed key must be stable")

	file, err := s.repo.GetFile(userID, string(key))
	s.NoError(err)
	s.Equal(testFileData, string(file))

	size, err := s.repo.FileSize(userID, string(key))
	s.NoError(err)
	s.EqualValues(len(testFileData), size)

	expires, err := s.repo.FileExpiration(userID, string(key))
	s.NoError(err)
	s.True(expires.IsZero())
}

func (s *UploadRepoSuite) TestForeignFileExpires() {
	userID := ulid.Make().String()
	key := ulid.Make().String()

	err := s.repo.SetForeignFileWithTTL(userID, key, Base64File(testFileData))
	s.NoError(err)

	expires, err := s.repo.FileExpiration(userID, key)
	s.NoError(err)
	s.True(expires.After(time.Now()))
}

func (s *UploadRepoSuite) TestGetMissingFile() {
	_, err := s.repo.GetFile(ulid.Make().String(), "nope")
	s.ErrorIs(err, ErrUploadNotFound)

	_, err = s.repo.GetFile("", "")
	s.ErrorIs(err, ErrUploadNotFound)
}

func (s *UploadRepoSuite) TestDeleteFile() {
	userID := ulid.Make().String()

	key, err := s.repo.SetFile(userID, Base64File(testFileData))
	s.NoError(err)

	s.NoError(s.repo.DeleteFile(userID, string(key)))

	_, err = s.repo.GetFile(userID, string(key))
	s.ErrorIs(err, ErrUploadNotFound)
}

func TestUploadRepoSuite(t *testing.T) {
	defer goleak.VerifyNone(t)

	suite.Run(t, new(UploadRepoSuite))
}
