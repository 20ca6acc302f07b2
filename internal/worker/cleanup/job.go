// Package cleanup は日次のデータ整理ジョブを提供する。
// ID基盤に存在しなくなったユーザーの削除と、孤児メンバーの除去を含む。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/soundcircle/internal/group"
	"github.com/hitoshi/soundcircle/internal/identity"
	"github.com/hitoshi/soundcircle/internal/metrics"
	"github.com/hitoshi/soundcircle/internal/repository"
)

// PrunerService は孤児メンバー除去の実行インターフェース。
type PrunerService interface {
	PruneOrphanedMembers(ctx context.Context) (*group.PruneResult, error)
}

// Job はID基盤との突き合わせとグループ整理の日次ジョブ。
// 2段階で構成される:
//  1. 全ユーザーをID基盤へ照会し、確定的に存在しないユーザーのレコードを削除する。
//     照会の失敗（通信エラーなど）では削除しない。
//  2. 孤児メンバーの除去と空グループの削除を実行する。
type Job struct {
	userRepo repository.UserRepository
	oracle   identity.Oracle
	pruner   PrunerService
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	userRepo repository.UserRepository,
	oracle identity.Oracle,
	pruner PrunerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Job {
	return &Job{
		userRepo: userRepo,
		oracle:   oracle,
		pruner:   pruner,
		metrics:  collector,
		logger:   logger,
	}
}

// Run はユーザー整理とグループ整理を1回実行する。
// ユーザー一覧の取得失敗、およびグループ整理の中断はジョブ全体の失敗として返す。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.deleteOrphanedUsers(ctx)
	if err != nil {
		return err
	}

	result, err := j.pruner.PruneOrphanedMembers(ctx)
	if err != nil {
		return fmt.Errorf("グループ整理に失敗しました: %w", err)
	}
	j.metrics.RecordMembersPruned(result.RemovedMembers)
	j.metrics.RecordGroupsDeleted(result.DeletedGroups)

	duration := time.Since(start)
	j.metrics.RecordJobDuration("cleanup", duration)
	j.logger.Info("日次整理ジョブが完了しました",
		slog.Int("deleted_users", deleted),
		slog.Int("pruned_members", result.RemovedMembers),
		slog.Int("deleted_groups", result.DeletedGroups),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteOrphanedUsers はID基盤に存在しないユーザーのレコードを削除し、削除数を返す。
// ID基盤への照会が通信エラーなどで失敗したユーザーは削除せず、ログに記録して
// 次のユーザーへ進む。不在が確定した場合のみ削除する。
func (j *Job) deleteOrphanedUsers(ctx context.Context) (int, error) {
	users, err := j.userRepo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	deleted := 0
	for _, user := range users {
		_, err := j.oracle.GetUser(ctx, user.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, identity.ErrUserNotFound) {
			j.metrics.RecordIdentityOracleFailure()
			j.logger.Error("ID基盤への照会に失敗しました。ユーザーは削除しません",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := j.userRepo.DeleteByID(ctx, user.ID); err != nil {
			j.logger.Error("ユーザーの削除に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
		j.logger.Info("ID基盤に存在しないユーザーを削除しました",
			slog.String("user_id", user.ID),
		)
	}

	j.metrics.RecordUsersDeleted(deleted)
	return deleted, nil
}

// Start は指定間隔のティッカーでジョブを起動する。
// 各実行にはjobTimeoutのタイムアウトを設定する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval, jobTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("日次整理ジョブスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	j.runWithTimeout(ctx, jobTimeout)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("日次整理ジョブスケジューラを停止しました")
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
		j.logger.Error("日次整理ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
