// Package store はドキュメントストアへの統一アクセスを提供する。
// 名前付きコレクションに対するget/set/update/delete/listと、
// 配列フィールドへのアトミックな集合演算（union/remove）を定義する。
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound は指定ドキュメントが存在しない場合に返される。
var ErrNotFound = errors.New("store: document not found")

// Meta はストアが管理するドキュメントのタイムスタンプを表す。
// 通常の読み取りでは返さず、必要な呼び出し元のみReadMetaで取得する。
type Meta struct {
	Created time.Time
	Updated time.Time
}

// DocumentStore はドキュメントストアの操作インターフェース。
// 全操作はバッキングストアへの直接のパススルーであり、
// リトライもキャッシュも行わない。
type DocumentStore interface {
	// Set はドキュメントを作成または完全上書きし、作成時刻を打刻する。
	Set(ctx context.Context, collection, id string, data any) error

	// Update は指定フィールドのみをマージし、更新時刻を打刻する。
	// ドキュメントが存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, collection, id string, patch map[string]any) error

	// Read はドキュメントをoutにデコードする。
	// ストア管理のタイムスタンプは含まれない（必要ならReadMetaを使う）。
	// ドキュメントが存在しない場合はErrNotFoundを返す。
	Read(ctx context.Context, collection, id string, out any) error

	// ReadMeta はストア管理のcreated/updatedタイムスタンプを返す。
	ReadMeta(ctx context.Context, collection, id string) (*Meta, error)

	// List はコレクション内の全ドキュメントをoutにデコードする。
	// outは*[]T。ページネーションなし（コレクションが小さい前提）。
	List(ctx context.Context, collection string, out any) error

	// Delete はドキュメントを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, collection, id string) error

	// ArrayUnion は文字列配列フィールドへvaluesをアトミックに集合加算する。
	// 既存の値は重複追加しない。ドキュメントが存在しない場合はErrNotFoundを返す。
	ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error

	// ArrayRemove は文字列配列フィールドからvaluesをアトミックに除去する。
	// 存在しない値の除去は何もしない。ドキュメントが存在しない場合はErrNotFoundを返す。
	ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error
}
