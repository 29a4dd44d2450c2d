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
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	local "github.com/lumichat/warden/database/local-store"
	"github.com/lumichat/warden/domain"
	"github.com/lumichat/warden/json"
	"github.com/oklog/ulid/v2"
)

var (
	ErrGroupNotFound = local.DBError("group not found")
	ErrMemberExists  = local.DBError("member already in group")
)

const (
	GroupsRepoName        = "/GROUPS"
	groupSubNamespace     = "GROUP"
	groupNameSubNamespace = "NAME"
	memberSubNamespace    = "MEMBER"
	countSubNamespace     = "COUNT"
)

type GroupStorer interface {
	NewTxn() (local.WardenTransactioner, error)
}

type GroupRepo struct {
	db GroupStorer
	mx *sync.Mutex
}

func NewGroupRepo(db GroupStorer) *GroupRepo {
	return &GroupRepo{db: db, mx: new(sync.Mutex)}
}

func groupFixedKey(groupId string) local.DatabaseKey {
	return local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(groupSubNamespace).
		AddRange(local.FixedRangeKey).
		AddParentId(groupId).
		Build()
}

func groupNameKey(name, groupId string) local.DatabaseKey {
	return local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(groupNameSubNamespace).
		AddRootID(strings.ToLower(name)).
		AddParentId(groupId).
		Build()
}

func groupCountKey(groupId string) local.DatabaseKey {
	return local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(countSubNamespace).
		AddRootID(groupId).
		Build()
}

func groupMemberKey(groupId, userId string) local.DatabaseKey {
	return local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(memberSubNamespace).
		AddRootID(groupId).
		AddParentId(userId).
		Build()
}

// Create stores a new group and enrolls the owner as its first member.
func (repo *GroupRepo) Create(group domain.Group) (domain.Group, error) {
	if group.Name == "" || group.OwnerId == "" {
		return group, local.DBError("group name or owner ID is empty")
	}

	repo.mx.Lock()
	defer repo.mx.Unlock()

	if group.Id == "" {
		group.Id = ulid.Make().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	group.MembersCount = 1

	fixedKey := groupFixedKey(group.Id)

	sortableKey := local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(groupSubNamespace).
		AddReversedTimestamp(group.CreatedAt).
		AddParentId(group.Id).
		Build()

	data, err := json.Marshal(group)
	if err != nil {
		return group, err
	}

	txn, err := repo.db.NewTxn()
	if err != nil {
		return group, err
	}
	defer txn.Rollback()

	bt, err := txn.Get(fixedKey)
	if err != nil && !local.IsNotFoundError(err) {
		return group, err
	}
	if len(bt) != 0 {
		return group, local.DBError("group already exists")
	}

	if err = txn.Set(fixedKey, sortableKey.Bytes()); err != nil {
		return group, err
	}
	if err = txn.Set(sortableKey, data); err != nil {
		return group, err
	}
	if err = txn.Set(groupNameKey(group.Name, group.Id), sortableKey.Bytes()); err != nil {
		return group, err
	}

	member, err := json.Marshal(map[string]any{"user_id": group.OwnerId, "joined_at": group.CreatedAt})
	if err != nil {
		return group, err
	}
	if err = txn.Set(groupMemberKey(group.Id, group.OwnerId), member); err != nil {
		return group, err
	}
	if _, err = txn.Increment(groupCountKey(group.Id)); err != nil {
		return group, err
	}

	return group, txn.Commit()
}

func (repo *GroupRepo) Get(groupId string) (group domain.Group, err error) {
	if groupId == "" {
		return group, local.DBError("group ID is empty")
	}

	txn, err := repo.db.NewTxn()
	if err != nil {
		return group, err
	}
	defer txn.Rollback()

	sortableKey, err := txn.Get(groupFixedKey(groupId))
	if err != nil && !local.IsNotFoundError(err) {
		return group, err
	}
	if len(sortableKey) == 0 {
		return group, ErrGroupNotFound
	}
	bt, err := txn.Get(local.DatabaseKey(sortableKey))
	if err != nil && !local.IsNotFoundError(err) {
		return group, err
	}

	if err = json.Unmarshal(bt, &group); err != nil {
		return group, err
	}

	group.MembersCount = readCount(txn, groupCountKey(groupId))
	return group, txn.Commit()
}

func (repo *GroupRepo) Delete(groupId string) error {
	if groupId == "" {
		return local.DBError("group ID is empty")
	}

	repo.mx.Lock()
	defer repo.mx.Unlock()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return err
	}
	defer txn.Rollback()

	fixedKey := groupFixedKey(groupId)

	sortableKey, err := txn.Get(fixedKey)
	if err != nil && !local.IsNotFoundError(err) {
		return err
	}
	if len(sortableKey) == 0 {
		return ErrGroupNotFound
	}

	var group domain.Group
	bt, err := txn.Get(local.DatabaseKey(sortableKey))
	if err == nil {
		_ = json.Unmarshal(bt, &group)
	}

	if err := txn.Delete(fixedKey); err != nil {
		return err
	}
	if err := txn.Delete(local.DatabaseKey(sortableKey)); err != nil {
		return err
	}
	if group.Name != "" {
		if err := txn.Delete(groupNameKey(group.Name, groupId)); err != nil {
			return err
		}
	}

	memberPrefix := local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(memberSubNamespace).
		AddRootID(groupId).
		Build()

	memberKeys := make([]local.DatabaseKey, 0)
	err = txn.IterateKeys(memberPrefix, func(key string) error {
		memberKeys = append(memberKeys, local.DatabaseKey(key))
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range memberKeys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	if err := txn.Delete(groupCountKey(groupId)); err != nil {
		return err
	}

	return txn.Commit()
}

func (repo *GroupRepo) List(limit *uint64, cursor *string) ([]domain.Group, string, error) {
	prefix := local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(groupSubNamespace).
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return nil, "", err
	}
	defer txn.Rollback()

	items, cur, err := txn.List(prefix, limit, cursor)
	if err != nil {
		return nil, cur, err
	}

	groups := make([]domain.Group, 0, len(items))
	for _, item := range items {
		var group domain.Group
		err = json.Unmarshal(item.Value, &group)
		if err != nil {
			err = fmt.Errorf(
				"failed to unmarshal group: key: %s, value: %s, message: %w",
				item.Key, item.Value, err,
			)
			return groups, cur, err
		}
		group.MembersCount = readCount(txn, groupCountKey(group.Id))
		groups = append(groups, group)
	}

	return groups, cur, txn.Commit()
}

// SearchByName finds groups whose name starts with the query,
// case insensitive.
func (repo *GroupRepo) SearchByName(query string, limit *uint64, cursor *string) ([]domain.Group, string, error) {
	if strings.TrimSpace(query) == "" {
		return repo.List(limit, cursor)
	}

	prefix := local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(groupNameSubNamespace).
		AddRootID(strings.ToLower(strings.TrimSpace(query))).
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return nil, "", err
	}
	defer txn.Rollback()

	items, cur, err := txn.List(prefix, limit, cursor)
	if err != nil {
		return nil, cur, err
	}

	sortableKeys := make([]local.DatabaseKey, 0, len(items))
	for _, item := range items {
		sortableKeys = append(sortableKeys, local.DatabaseKey(item.Value))
	}

	found, err := txn.BatchGet(sortableKeys...)
	if err != nil {
		return nil, cur, err
	}

	groups := make([]domain.Group, 0, len(found))
	for _, item := range found {
		var group domain.Group
		if err = json.Unmarshal(item.Value, &group); err != nil {
			return nil, cur, err
		}
		group.MembersCount = readCount(txn, groupCountKey(group.Id))
		groups = append(groups, group)
	}

	return groups, cur, txn.Commit()
}

func (repo *GroupRepo) AddMember(groupId, userId string) error {
	if groupId == "" || userId == "" {
		return local.DBError("group ID or user ID is empty")
	}

	repo.mx.Lock()
	defer repo.mx.Unlock()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return err
	}
	defer txn.Rollback()

	if _, err := txn.Get(groupFixedKey(groupId)); local.IsNotFoundError(err) {
		return ErrGroupNotFound
	} else if err != nil {
		return err
	}

	memberKey := groupMemberKey(groupId, userId)
	if _, err := txn.Get(memberKey); err == nil {
		return ErrMemberExists
	} else if !local.IsNotFoundError(err) {
		return err
	}

	member, err := json.Marshal(map[string]any{"user_id": userId, "joined_at": time.Now()})
	if err != nil {
		return err
	}
	if err = txn.Set(memberKey, member); err != nil {
		return err
	}
	if _, err = txn.Increment(groupCountKey(groupId)); err != nil {
		return err
	}

	return txn.Commit()
}

func (repo *GroupRepo) RemoveMember(groupId, userId string) error {
	if groupId == "" || userId == "" {
		return local.DBError("group ID or user ID is empty")
	}

	repo.mx.Lock()
	defer repo.mx.Unlock()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return err
	}
	defer txn.Rollback()

	memberKey := groupMemberKey(groupId, userId)
	if _, err := txn.Get(memberKey); local.IsNotFoundError(err) {
		return ErrGroupNotFound
	} else if err != nil {
		return err
	}

	if err = txn.Delete(memberKey); err != nil {
		return err
	}
	if _, err = txn.Decrement(groupCountKey(groupId)); err != nil {
		return err
	}

	return txn.Commit()
}

func (repo *GroupRepo) MembersCount(groupId string) (uint64, error) {
	if groupId == "" {
		return 0, local.DBError("members count: empty group ID")
	}
	txn, err := repo.db.NewTxn()
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	bt, err := txn.Get(groupCountKey(groupId))
	if local.IsNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := binary.BigEndian.Uint64(bt)
	return count, txn.Commit()
}

func (repo *GroupRepo) ListMembers(groupId string, limit *uint64, cursor *string) ([]string, string, error) {
	if groupId == "" {
		return nil, "", local.DBError("group ID cannot be blank")
	}

	prefix := local.NewPrefixBuilder(GroupsRepoName).
		AddSubPrefix(memberSubNamespace).
		AddRootID(groupId).
		Build()

	txn, err := repo.db.NewTxn()
	if err != nil {
		return nil, "", err
	}
	defer txn.Rollback()

	keys, cur, err := txn.ListKeys(prefix, limit, cursor)
	if err != nil {
		return nil, cur, err
	}

	if err := txn.Commit(); err != nil {
		return nil, cur, err
	}

	members := make([]string, 0, len(keys))
	for _, key := range keys {
		idx := strings.LastIndex(key, ":")
		if idx < 0 || idx == len(key)-1 {
			continue
		}
		members = append(members, key[idx+1:])
	}

	return members, cur, nil
}

func readCount(txn local.WardenTransactioner, key local.DatabaseKey) int64 {
	bt, err := txn.Get(key)
	if err != nil || len(bt) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(bt))
}
