package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/store"
)

// StoreUserRepo はドキュメントストアを使用したユーザーリポジトリ。
type StoreUserRepo struct {
	store store.DocumentStore
}

// NewStoreUserRepo はStoreUserRepoを生成する。
func NewStoreUserRepo(s store.DocumentStore) *StoreUserRepo {
	return &StoreUserRepo{store: s}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *StoreUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.store.Read(ctx, CollectionUsers, id, user)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByIDWithMeta はユーザーとストア管理のcreated/updatedタイムスタンプを併せて取得する。
// 見つからない場合は(nil, nil, nil)を返す。
func (r *StoreUserRepo) FindByIDWithMeta(ctx context.Context, id string) (*model.User, *store.Meta, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil || user == nil {
		return nil, nil, err
	}

	meta, err := r.store.ReadMeta(ctx, CollectionUsers, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read user meta: %w", err)
	}
	return user, meta, nil
}

// Create はユーザードキュメントを作成する。
func (r *StoreUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := r.store.Set(ctx, CollectionUsers, user.ID, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// List は全ユーザーを取得する。
func (r *StoreUserRepo) List(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	if err := r.store.List(ctx, CollectionUsers, &users); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetTokens は両トークンを更新し、tokensLastUpdatedを打刻する。
func (r *StoreUserRepo) SetTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	patch := map[string]any{
		"accessToken":       accessToken,
		"refreshToken":      refreshToken,
		"tokensLastUpdated": time.Now().UTC(),
	}
	if err := r.store.Update(ctx, CollectionUsers, id, patch); err != nil {
		return fmt.Errorf("failed to set tokens for user %s: %w", id, err)
	}
	return nil
}

// UpdateAccessToken はアクセストークンのみを更新し、tokensLastUpdatedを打刻する。
func (r *StoreUserRepo) UpdateAccessToken(ctx context.Context, id, accessToken string) error {
	patch := map[string]any{
		"accessToken":       accessToken,
		"tokensLastUpdated": time.Now().UTC(),
	}
	if err := r.store.Update(ctx, CollectionUsers, id, patch); err != nil {
		return fmt.Errorf("failed to update access token for user %s: %w", id, err)
	}
	return nil
}

// ClearTokens は両トークンを空にし、tokensLastUpdatedを打刻する。
func (r *StoreUserRepo) ClearTokens(ctx context.Context, id string) error {
	patch := map[string]any{
		"accessToken":       "",
		"refreshToken":      "",
		"tokensLastUpdated": time.Now().UTC(),
	}
	if err := r.store.Update(ctx, CollectionUsers, id, patch); err != nil {
		return fmt.Errorf("failed to clear tokens for user %s: %w", id, err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。存在しない場合は何もしない。
func (r *StoreUserRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, CollectionUsers, id); err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*StoreUserRepo)(nil)
