package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/store"
)

// StoreGroupRepo はドキュメントストアを使用したグループリポジトリ。
// メンバー集合の加算・除去はストアのアトミック配列演算へ委譲する。
type StoreGroupRepo struct {
	store store.DocumentStore
}

// NewStoreGroupRepo はStoreGroupRepoを生成する。
func NewStoreGroupRepo(s store.DocumentStore) *StoreGroupRepo {
	return &StoreGroupRepo{store: s}
}

// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
func (r *StoreGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	group := &model.Group{}
	err := r.store.Read(ctx, CollectionGroups, id, group)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group by ID: %w", err)
	}
	return group, nil
}

// Create はグループドキュメントを作成する。
func (r *StoreGroupRepo) Create(ctx context.Context, group *model.Group) error {
	if group.Members == nil {
		group.Members = []string{}
	}
	if err := r.store.Set(ctx, CollectionGroups, group.ID, group); err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// List は全グループを取得する。
func (r *StoreGroupRepo) List(ctx context.Context) ([]*model.Group, error) {
	var groups []*model.Group
	if err := r.store.List(ctx, CollectionGroups, &groups); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// AddMember はメンバー集合へユーザーIDをアトミックに追加する。
func (r *StoreGroupRepo) AddMember(ctx context.Context, groupID, userID string) error {
	if err := r.store.ArrayUnion(ctx, CollectionGroups, groupID, "members", userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to add member to group %s: %w", groupID, err)
	}
	return nil
}

// RemoveMembers はメンバー集合からユーザーID群を1回の操作でアトミックに除去する。
func (r *StoreGroupRepo) RemoveMembers(ctx context.Context, groupID string, userIDs ...string) error {
	if err := r.store.ArrayRemove(ctx, CollectionGroups, groupID, "members", userIDs...); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to remove members from group %s: %w", groupID, err)
	}
	return nil
}

// DeleteByID は指定IDのグループを削除する。存在しない場合は何もしない。
func (r *StoreGroupRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, CollectionGroups, id); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", id, err)
	}
	return nil
}

// compile-time interface check
var _ GroupRepository = (*StoreGroupRepo)(nil)
