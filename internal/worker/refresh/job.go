// Package refresh はトークンリフレッシュと再生履歴取り込みの
// 毎時バッチジョブを提供する。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/soundcircle/internal/metrics"
	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/repository"
	"github.com/hitoshi/soundcircle/internal/spotify"
)

// TokenRefresher はリフレッシュトークンで新しいアクセストークンを取得するインターフェース。
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*spotify.TokenPair, error)
}

// ScraperService は再生履歴取り込みの実行インターフェース。
type ScraperService interface {
	// ScrapeUsers は複数ユーザーを順次取り込み、(成功数, 失敗数)を返す。
	ScrapeUsers(ctx context.Context, users []*model.User, hour int) (succeeded, failed int)

	// CurrentHour は設定タイムゾーンにおける現在の時間を返す。
	CurrentHour() int
}

// Job はトークンリフレッシュと再生履歴取り込みの毎時ジョブ。
// 2段階で構成される:
//  1. 両トークンを持つ全ユーザーのアクセストークンをリフレッシュする。
//     リフレッシュに失敗したユーザーは両トークンを消去して再認可を強制する。
//  2. リフレッシュに成功したユーザーだけを対象に、現在時間の再生履歴を取り込む。
type Job struct {
	userRepo  repository.UserRepository
	refresher TokenRefresher
	scraper   ScraperService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	userRepo repository.UserRepository,
	refresher TokenRefresher,
	scraper ScraperService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Job {
	return &Job{
		userRepo:  userRepo,
		refresher: refresher,
		scraper:   scraper,
		metrics:   collector,
		logger:    logger,
	}
}

// Run はリフレッシュと取り込みを1回実行する。
// ユーザー一覧の取得失敗はジョブ全体の失敗として返す。
// 個別ユーザーの失敗はログに記録して次のユーザーへ進む。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	users, err := j.userRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	refreshed := j.refreshTokens(ctx, users)

	hour := j.scraper.CurrentHour()
	succeeded, failed := j.scraper.ScrapeUsers(ctx, refreshed, hour)
	j.metrics.RecordScrapeResults(succeeded, failed)

	duration := time.Since(start)
	j.metrics.RecordJobDuration("refresh", duration)
	j.logger.Info("毎時ジョブが完了しました",
		slog.Int("user_count", len(users)),
		slog.Int("refreshed_count", len(refreshed)),
		slog.Int("hour", hour),
		slog.Int("scrape_succeeded", succeeded),
		slog.Int("scrape_failed", failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// refreshTokens は両トークンを持つユーザーのアクセストークンをリフレッシュし、
// 成功したユーザー（更新済みトークン込み）の集合を返す。
// どちらかのトークンを欠くユーザーはスキップする。
func (j *Job) refreshTokens(ctx context.Context, users []*model.User) []*model.User {
	refreshed := make([]*model.User, 0, len(users))

	for _, user := range users {
		if !user.HasTokens() {
			continue
		}

		pair, err := j.refresher.RefreshAccessToken(ctx, user.RefreshToken)
		if err != nil {
			j.metrics.RecordRefreshFailure()
			j.logger.Error("トークンリフレッシュに失敗しました。トークンを消去します",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			// リフレッシュ不能なトークンは恒久的に無効とみなし、
			// 両トークンを消去して再認可を強制する
			if err := j.userRepo.ClearTokens(ctx, user.ID); err != nil {
				j.logger.Error("トークンの消去に失敗しました",
					slog.String("user_id", user.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		if pair.RefreshToken != user.RefreshToken {
			// リフレッシュトークンがローテーションされた場合は両方を保存する
			err = j.userRepo.SetTokens(ctx, user.ID, pair.AccessToken, pair.RefreshToken)
		} else {
			err = j.userRepo.UpdateAccessToken(ctx, user.ID, pair.AccessToken)
		}
		if err != nil {
			j.logger.Error("トークンの保存に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		j.metrics.RecordRefreshSuccess()
		user.AccessToken = pair.AccessToken
		user.RefreshToken = pair.RefreshToken
		refreshed = append(refreshed, user)
	}

	return refreshed
}

// Start は指定間隔のティッカーでジョブを起動する。
// 各実行にはjobTimeoutのタイムアウトを設定する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval, jobTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("毎時ジョブスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	j.runWithTimeout(ctx, jobTimeout)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("毎時ジョブスケジューラを停止しました")
			return
		case <-ticker.C:
			j.runWithTimeout(ctx, jobTimeout)
		}
	}
}

// runWithTimeout はジョブを1回、実行タイムアウト付きで実行する。
func (j *Job) runWithTimeout(ctx context.Context, jobTimeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := j.Run(runCtx); err != nil {
		j.logger.Error("毎時ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
