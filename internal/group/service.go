// Package group はグループ管理のドメインロジックを提供する。
// グループの作成・参加・脱退と、孤児メンバーの一括除去を含む。
package group

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/repository"
	"github.com/hitoshi/soundcircle/internal/security"
)

// Service はグループ管理のサービス層。
type Service struct {
	groupRepo repository.GroupRepository
	userRepo  repository.UserRepository
	sanitizer security.NameSanitizerService
	logger    *slog.Logger

	// exemptGroupID はメンバーが空になっても自動削除しないグループのID。
	// 空文字列の場合は除外グループなし。
	exemptGroupID string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	groupRepo repository.GroupRepository,
	userRepo repository.UserRepository,
	sanitizer security.NameSanitizerService,
	logger *slog.Logger,
	exemptGroupID string,
) *Service {
	return &Service{
		groupRepo:     groupRepo,
		userRepo:      userRepo,
		sanitizer:     sanitizer,
		logger:        logger,
		exemptGroupID: exemptGroupID,
	}
}

// CreateGroup はグループを作成し、作成者を最初のメンバーとして登録する。
func (s *Service) CreateGroup(ctx context.Context, title, creatorID string) (*model.Group, error) {
	creator, err := s.userRepo.FindByID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("作成者の確認に失敗しました: %w", err)
	}
	if creator == nil {
		return nil, model.NewUserNotFoundError(creatorID)
	}

	cleanTitle := s.sanitizer.Sanitize(title)
	if cleanTitle == "" {
		return nil, model.NewValidationError("グループ名が空です")
	}

	group := &model.Group{
		ID:      uuid.NewString(),
		Title:   cleanTitle,
		Members: []string{creatorID},
	}
	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("グループの作成に失敗しました: %w", err)
	}

	s.logger.Info("グループを作成しました",
		slog.String("group_id", group.ID),
		slog.String("creator_id", creatorID),
	)

	return group, nil
}

// JoinGroup はユーザーをグループに参加させる。既にメンバーの場合は何も変わらない（冪等）。
func (s *Service) JoinGroup(ctx context.Context, groupID, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの確認に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(userID)
	}

	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("グループの確認に失敗しました: %w", err)
	}
	if group == nil {
		return model.NewGroupNotFoundError(groupID)
	}

	if err := s.groupRepo.AddMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("グループへの参加に失敗しました: %w", err)
	}

	s.logger.Info("グループに参加しました",
		slog.String("group_id", groupID),
		slog.String("user_id", userID),
	)

	return nil
}

// LeaveGroup はユーザーをグループから脱退させる。非メンバーの脱退は何も変わらない（冪等）。
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID string) error {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("グループの確認に失敗しました: %w", err)
	}
	if group == nil {
		return model.NewGroupNotFoundError(groupID)
	}

	// 非メンバーの脱退はストアに触れず成功とする
	if !group.HasMember(userID) {
		return nil
	}

	if err := s.groupRepo.RemoveMembers(ctx, groupID, userID); err != nil {
		return fmt.Errorf("グループからの脱退に失敗しました: %w", err)
	}

	s.logger.Info("グループから脱退しました",
		slog.String("group_id", groupID),
		slog.String("user_id", userID),
	)

	return nil
}

// PruneResult は孤児メンバー除去の実行結果。
type PruneResult struct {
	RemovedMembers int // 除去した孤児メンバー数
	DeletedGroups  int // 削除した空グループ数
}

// PruneOrphanedMembers は全グループを走査し、対応するユーザーレコードが
// 存在しないメンバーを除去する。除去後にメンバーが空になったグループは、
// 除外グループを除いて削除する。
//
// ユーザー一覧またはグループ一覧の取得に失敗した場合は処理全体を
// 中断してエラーを返す。一過性の読み取り障害を空のリストとして
// 扱ってしまうと全グループを誤削除しうる。個別グループの操作失敗は
// ログに記録して次のグループへ進む。
func (s *Service) PruneOrphanedMembers(ctx context.Context) (*PruneResult, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	groups, err := s.groupRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("グループ一覧の取得に失敗しました: %w", err)
	}

	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.ID] = struct{}{}
	}

	result := &PruneResult{}
	for _, g := range groups {
		var orphans []string
		for _, member := range g.Members {
			if _, ok := known[member]; !ok {
				orphans = append(orphans, member)
			}
		}

		if len(orphans) > 0 {
			if err := s.groupRepo.RemoveMembers(ctx, g.ID, orphans...); err != nil {
				s.logger.Error("孤児メンバーの除去に失敗しました",
					slog.String("group_id", g.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.RemovedMembers += len(orphans)
			s.logger.Info("孤児メンバーを除去しました",
				slog.String("group_id", g.ID),
				slog.Int("removed", len(orphans)),
			)
		}

		remaining := len(g.Members) - len(orphans)
		if remaining > 0 {
			continue
		}
		if g.ID == s.exemptGroupID {
			continue
		}

		if err := s.groupRepo.DeleteByID(ctx, g.ID); err != nil {
			s.logger.Error("空グループの削除に失敗しました",
				slog.String("group_id", g.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.DeletedGroups++
		s.logger.Info("空グループを削除しました",
			slog.String("group_id", g.ID),
		)
	}

	return result, nil
}
