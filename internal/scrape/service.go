// Package scrape は再生履歴の時間別取り込みロジックを提供する。
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/soundcircle/internal/metrics"
	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/repository"
)

// HistoryFetcher は再生履歴を時間窓付きで取得するインターフェース。
type HistoryFetcher interface {
	RecentlyPlayed(ctx context.Context, accessToken string, start, end time.Time) ([]model.TrackStream, error)
}

// Service は再生履歴取り込みのサービス層。
// トークンのリフレッシュは行わない。呼び出し側が有効な
// アクセストークンを持つユーザーだけを渡すこと。
type Service struct {
	scrapeRepo repository.ScrapeRepository
	fetcher    HistoryFetcher
	location   *time.Location
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	// now はテスト用に差し替え可能な現在時刻取得関数。
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	scrapeRepo repository.ScrapeRepository,
	fetcher HistoryFetcher,
	location *time.Location,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		scrapeRepo: scrapeRepo,
		fetcher:    fetcher,
		location:   location,
		metrics:    collector,
		logger:     logger,
		now:        time.Now,
	}
}

// hourWindow は設定タイムゾーンの当日0時を基準に、
// 指定時間の1時間窓[start, end)を計算する。
func (s *Service) hourWindow(hour int) (start, end time.Time) {
	nowLocal := s.now().In(s.location)
	midnight := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, s.location)
	start = midnight.Add(time.Duration(hour) * time.Hour)
	end = start.Add(time.Hour)
	return start, end
}

// CurrentHour は設定タイムゾーンにおける現在の時間（0〜23）を返す。
func (s *Service) CurrentHour() int {
	return s.now().In(s.location).Hour()
}

// ScrapeUser は1ユーザーの指定時間の再生履歴を取得して保存する。
// 対象時間に再生がない場合は何も書き込まない。
func (s *Service) ScrapeUser(ctx context.Context, user *model.User, hour int) error {
	start, end := s.hourWindow(hour)

	streams, err := s.fetcher.RecentlyPlayed(ctx, user.AccessToken, start, end)
	if err != nil {
		return fmt.Errorf("再生履歴の取得に失敗しました: %w", err)
	}

	if len(streams) == 0 {
		return nil
	}

	for i := range streams {
		streams[i].UserID = user.ID
	}

	record := &model.HourlyScrape{
		Streams: streams,
		Date:    start.Format("2006-01-02"),
		Hour:    hour,
		UserID:  user.ID,
	}
	if err := s.scrapeRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("再生履歴の保存に失敗しました: %w", err)
	}

	s.metrics.RecordStreamsScraped(len(streams))
	s.logger.Info("再生履歴を保存しました",
		slog.String("user_id", user.ID),
		slog.Int("hour", hour),
		slog.Int("stream_count", len(streams)),
	)

	return nil
}

// ScrapeUsers は複数ユーザーを順次取り込む。
// 1ユーザーの失敗はログに記録して次のユーザーへ進む。
// 戻り値は(保存に成功したユーザー数, 失敗したユーザー数)。
func (s *Service) ScrapeUsers(ctx context.Context, users []*model.User, hour int) (succeeded, failed int) {
	for _, user := range users {
		if err := s.ScrapeUser(ctx, user, hour); err != nil {
			failed++
			s.logger.Error("ユーザーの再生履歴取り込みに失敗しました",
				slog.String("user_id", user.ID),
				slog.Int("hour", hour),
				slog.String("error", err.Error()),
			)
			continue
		}
		succeeded++
	}
	return succeeded, failed
}
