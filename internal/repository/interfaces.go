// Package repository はデータ永続化のインターフェースを定義する。
// 実装はドキュメントストア（internal/store）への委譲で構成する。
package repository

import (
	"context"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/store"
)

// コレクション名
const (
	CollectionUsers         = "users"
	CollectionGroups        = "groups"
	CollectionHourlyScrapes = "hourlyScrapes"
)

// UserRepository はユーザードキュメントの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIDWithMeta はユーザーとストア管理のタイムスタンプを併せて取得する。
	// 見つからない場合は(nil, nil, nil)を返す。
	FindByIDWithMeta(ctx context.Context, id string) (*model.User, *store.Meta, error)

	// Create はユーザードキュメントを作成する。
	Create(ctx context.Context, user *model.User) error

	// List は全ユーザーを取得する。
	List(ctx context.Context) ([]*model.User, error)

	// SetTokens はアクセストークンとリフレッシュトークンの両方を更新し、
	// tokensLastUpdatedを打刻する（認可コード交換時に使用）。
	SetTokens(ctx context.Context, id, accessToken, refreshToken string) error

	// UpdateAccessToken はアクセストークンのみを更新し、tokensLastUpdatedを打刻する。
	// リフレッシュトークンは変更しない（トークンリフレッシュ時に使用）。
	UpdateAccessToken(ctx context.Context, id, accessToken string) error

	// ClearTokens は両トークンを空にし、tokensLastUpdatedを打刻する。
	// リフレッシュ不能なトークンの無効化（再認可の強制）に使用する。
	ClearTokens(ctx context.Context, id string) error

	// DeleteByID は指定IDのユーザーを削除する。存在しない場合は何もしない。
	DeleteByID(ctx context.Context, id string) error
}

// GroupRepository はグループドキュメントの永続化インターフェース。
type GroupRepository interface {
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Group, error)

	// Create はグループドキュメントを作成する。
	Create(ctx context.Context, group *model.Group) error

	// List は全グループを取得する。
	List(ctx context.Context) ([]*model.Group, error)

	// AddMember はメンバー集合へユーザーIDをアトミックに追加する。
	// 既にメンバーの場合は何も変わらない。グループ不在はstore.ErrNotFound。
	AddMember(ctx context.Context, groupID, userID string) error

	// RemoveMembers はメンバー集合からユーザーID群を1回の操作でアトミックに除去する。
	// 非メンバーの除去は何も変わらない。グループ不在はstore.ErrNotFound。
	RemoveMembers(ctx context.Context, groupID string, userIDs ...string) error

	// DeleteByID は指定IDのグループを削除する。存在しない場合は何もしない。
	DeleteByID(ctx context.Context, id string) error
}

// ScrapeRepository は時間別スクレイプドキュメントの永続化インターフェース。
type ScrapeRepository interface {
	// Create はスクレイプ結果を新規ドキュメントとして追記する。
	Create(ctx context.Context, scrape *model.HourlyScrape) error

	// ListByUser は指定ユーザーの全スクレイプを取得する。
	ListByUser(ctx context.Context, userID string) ([]*model.HourlyScrape, error)
}
