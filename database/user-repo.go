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

package database

import (
	"errors"
	"strings"
	"time"

	local "github.com/lumichat/warden/database/local-store"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/json"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound      = local.DBError("user not found")
	ErrUserAlreadyExists = local.DBError("user already exists")
)

const (
	UsersRepoName    = "/USERS"
	userSubNamespace = "USER"
	nameSubNamespace = "NAME"
)

type UserStorer interface {
	NewTxn() (local.WardenTransactioner, error)
	Set(key local.DatabaseKey, value []byte) error
	Get(key local.DatabaseKey) ([]byte, error)
	Delete(key local.DatabaseKey) error
}

type UserRepo struct {
	db UserStorer
}

func NewUserRepo(db UserStorer) *UserRepo {
	return &UserRepo{db: db}
}

func userFixedKey(userId string) local.DatabaseKey {
	return local.NewPrefixBuilder(UsersRepoName).
		AddSubPrefix(userSubNamespace).
		AddRange(local.FixedRangeKey).
		AddParentId(userId).
		Build()
}

func userNameKey(username, userId string) local.DatabaseKey {
	return local.NewPrefixBuilder(UsersRepoName).
		AddSubPrefix(nameSubNamespace).
		AddRootID(strings.ToLower(username)).
		AddParentId(userId).
		Build()
}

// Create adds a new user to the directory
func (repo *UserRepo) Create(user domain.User) (domain.User, error) {
	if user.Id == "" {
		return user, local.DBError("user id is empty")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	data, err := json.JSON.Marshal(user)
	if err != nil {
		return user, err
	}

	fixedKey := userFixedKey(user.Id)

	_, err = repo.db.Get(fixedKey)
	if !errors.Is(err, local.ErrKeyNotFound) {
		return user, ErrUserAlreadyExists
	}

	sortableKey := local.NewPrefixBuilder(UsersRepoName).
		AddSubPrefix(userSubNamespace).
		AddReversedTimestamp(user.CreatedAt).
		AddParentId(user.Id).
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return user, err
	}
	defer txn.Rollback()

	if user.Username != "" {
		if err = txn.Set(userNameKey(user.Username, user.Id), sortableKey.Bytes()); err != nil {
			return user, err
		}
	}

	if err = txn.Set(fixedKey, sortableKey.Bytes()); err != nil {
		return user, err
	}
	if err = txn.Set(sortableKey, data); err != nil {
		return user, err
	}
	return user, txn.Commit()
}

func (repo *UserRepo) Update(userId string, newUser domain.User) (domain.User, error) {
	var existingUser domain.User

	fixedKey := userFixedKey(userId)

	txn, err := repo.db.NewTxn()
	if err != nil {
		return existingUser, err
	}
	defer txn.Rollback()

	sortableKeyBytes, err := txn.Get(fixedKey)
	if errors.Is(err, local.ErrKeyNotFound) {
		return existingUser, ErrUserNotFound
	}
	if err != nil {
		return existingUser, err
	}

	data, err := txn.Get(local.DatabaseKey(sortableKeyBytes))
	if errors.Is(err, local.ErrKeyNotFound) {
		return existingUser, ErrUserNotFound
	}
	if err != nil {
		return existingUser, err
	}

	err = json.JSON.Unmarshal(data, &existingUser)
	if err != nil {
		return existingUser, err
	}

	prevUsername := existingUser.Username

	if newUser.Bio != "" {
		existingUser.Bio = newUser.Bio
	}
	if newUser.AvatarKey != "" {
		existingUser.AvatarKey = newUser.AvatarKey
	}
	if newUser.Nickname != "" {
		existingUser.Nickname = newUser.Nickname
	}
	if newUser.Username != "" {
		existingUser.Username = newUser.Username
	}
	now := time.Now()
	existingUser.UpdatedAt = &now

	bt, err := json.JSON.Marshal(existingUser)
	if err != nil {
		return existingUser, err
	}
	if err = txn.Set(local.DatabaseKey(sortableKeyBytes), bt); err != nil {
		return existingUser, err
	}

	if existingUser.Username != prevUsername {
		if prevUsername != "" {
			if err = txn.Delete(userNameKey(prevUsername, userId)); err != nil {
				return existingUser, err
			}
		}
		if err = txn.Set(userNameKey(existingUser.Username, userId), sortableKeyBytes); err != nil {
			return existingUser, err
		}
	}
	return existingUser, txn.Commit()
}

// Get retrieves a user by their ID
func (repo *UserRepo) Get(userId string) (user domain.User, err error) {
	if userId == "" {
		return user, ErrUserNotFound
	}
	sortableKeyBytes, err := repo.db.Get(userFixedKey(userId))
	if errors.Is(err, local.ErrKeyNotFound) {
		return user, ErrUserNotFound
	}
	if err != nil {
		return user, err
	}

	data, err := repo.db.Get(local.DatabaseKey(sortableKeyBytes))
	if errors.Is(err, local.ErrKeyNotFound) {
		return user, ErrUserNotFound
	}
	if err != nil {
		return user, err
	}

	err = json.JSON.Unmarshal(data, &user)
	if err != nil {
		return user, err
	}

	return user, nil
}

// GetByUsername resolves an exact username thru the name index,
// case insensitive.
func (repo *UserRepo) GetByUsername(username string) (user domain.User, err error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return user, ErrUserNotFound
	}

	// the trailing id separator keeps "wanda" from matching "wandarella"
	prefix := local.NewPrefixBuilder(UsersRepoName).
		AddSubPrefix(nameSubNamespace).
		AddRootID(username).
		AddParentId("").
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return user, err
	}
	defer txn.Rollback()

	limit := uint64(1)
	items, _, err := txn.List(prefix, &limit, nil)
	if err != nil {
		return user, err
	}
	if len(items) == 0 {
		return user, ErrUserNotFound
	}

	data, err := txn.Get(local.DatabaseKey(items[0].Value))
	if errors.Is(err, local.ErrKeyNotFound) {
		return user, ErrUserNotFound
	}
	if err != nil {
		return user, err
	}

	if err = json.JSON.Unmarshal(data, &user); err != nil {
		return user, err
	}
	return user, txn.Commit()
}

// Delete removes a user by their ID
func (repo *UserRepo) Delete(userId string) error {
	fixedKey := userFixedKey(userId)

	txn, err := repo.db.NewTxn()
	if err != nil {
		return err
	}
	defer txn.Rollback()

	sortableKeyBytes, err := txn.Get(fixedKey)
	if errors.Is(err, local.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	data, err := txn.Get(local.DatabaseKey(sortableKeyBytes))
	if err != nil {
		return err
	}

	var u domain.User
	err = json.JSON.Unmarshal(data, &u)
	if err != nil {
		return err
	}

	if err = txn.Delete(fixedKey); err != nil {
		return err
	}
	if err = txn.Delete(local.DatabaseKey(sortableKeyBytes)); err != nil {
		return err
	}
	if u.Username != "" {
		if err = txn.Delete(userNameKey(u.Username, u.Id)); err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (repo *UserRepo) List(limit *uint64, cursor *string) ([]domain.User, string, error) {
	prefix := local.NewPrefixBuilder(UsersRepoName).
		AddSubPrefix(userSubNamespace).
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return nil, "", err
	}
	defer txn.Rollback()

	items, cur, err := txn.List(prefix, limit, cursor)
	if err != nil {
		return nil, "", err
	}

	if err = txn.Commit(); err != nil {
		return nil, "", err
	}

	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		var u domain.User
		err = json.JSON.Unmarshal(item.Value, &u)
		if err != nil {
			return nil, "", err
		}
		users = append(users, u)
	}

	return users, cur, nil
}

// SearchByName finds users whose username starts with the query,
// case insensitive. An empty query pages thru the whole directory.
func (repo *UserRepo) SearchByName(query string, limit *uint64, cursor *string) ([]domain.User, string, error) {
	if strings.TrimSpace(query) == "" {
		return repo.List(limit, cursor)
	}

	prefix := local.NewPrefixBuilder(UsersRepoName).
		AddSubPrefix(nameSubNamespace).
		AddRootID(strings.ToLower(strings.TrimSpace(query))).
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return nil, "", err
	}
	defer txn.Rollback()

	items, cur, err := txn.List(prefix, limit, cursor)
	if err != nil {
		return nil, "", err
	}

	sortableKeys := make([]local.DatabaseKey, 0, len(items))
	for _, item := range items {
		sortableKeys = append(sortableKeys, local.DatabaseKey(item.Value))
	}

	found, err := txn.BatchGet(sortableKeys...)
	if err != nil {
		return nil, "", err
	}

	if err = txn.Commit(); err != nil {
		return nil, "", err
	}

	users := make([]domain.User, 0, len(found))
	for _, item := range found {
		var u domain.User
		err = json.JSON.Unmarshal(item.Value, &u)
		if err != nil {
			return nil, "", err
		}
		users = append(users, u)
	}

	return users, cur, nil
}

func (repo *UserRepo) GetBatch(userIDs ...string) (users []domain.User, err error) {
	if len(userIDs) == 0 {
		return users, nil
	}

	txn, err := repo.db.NewTxn()
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	users = make([]domain.User, 0, len(userIDs))

	for _, userID := range userIDs {
		sortableKey, err := txn.Get(userFixedKey(userID))
		if errors.Is(err, local.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		data, err := txn.Get(local.DatabaseKey(sortableKey))
		if errors.Is(err, local.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var u domain.User
		err = json.JSON.Unmarshal(data, &u)
		if err != nil {
			log.Errorln("cannot unmarshal batch user data:", string(data))
			return nil, err
		}
		users = append(users, u)
	}

	return users, txn.Commit()
}
