package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/store"
)

// StoreScrapeRepo はドキュメントストアを使用したスクレイプリポジトリ。
// スクレイプはユーザー・時間ごとの追記専用ドキュメントとして保存する。
type StoreScrapeRepo struct {
	store store.DocumentStore
}

// NewStoreScrapeRepo はStoreScrapeRepoを生成する。
func NewStoreScrapeRepo(s store.DocumentStore) *StoreScrapeRepo {
	return &StoreScrapeRepo{store: s}
}

// Create はスクレイプ結果を新規ドキュメントとして追記する。
// ドキュメントIDは生成したUUIDを使用する。
func (r *StoreScrapeRepo) Create(ctx context.Context, scrape *model.HourlyScrape) error {
	id := uuid.NewString()
	if err := r.store.Set(ctx, CollectionHourlyScrapes, id, scrape); err != nil {
		return fmt.Errorf("failed to create hourly scrape for user %s: %w", scrape.UserID, err)
	}
	return nil
}

// ListByUser は指定ユーザーの全スクレイプを取得する。
func (r *StoreScrapeRepo) ListByUser(ctx context.Context, userID string) ([]*model.HourlyScrape, error) {
	var all []*model.HourlyScrape
	if err := r.store.List(ctx, CollectionHourlyScrapes, &all); err != nil {
		return nil, fmt.Errorf("failed to list hourly scrapes: %w", err)
	}

	scrapes := make([]*model.HourlyScrape, 0, len(all))
	for _, s := range all {
		if s.UserID == userID {
			scrapes = append(scrapes, s)
		}
	}
	return scrapes, nil
}

// compile-time interface check
var _ ScrapeRepository = (*StoreScrapeRepo)(nil)
