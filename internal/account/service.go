// Package account はアカウント管理のドメインロジックを提供する。
// アカウントの作成・削除とSpotify認可コードの取り込みを含む。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/repository"
	"github.com/hitoshi/soundcircle/internal/security"
	"github.com/hitoshi/soundcircle/internal/spotify"
	"github.com/hitoshi/soundcircle/internal/store"
)

// TokenExchanger は認可コードをトークンの組に交換するインターフェース。
type TokenExchanger interface {
	ExchangeAuthCode(ctx context.Context, code string) (*spotify.TokenPair, error)
}

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	exchanger TokenExchanger
	sanitizer security.NameSanitizerService
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	exchanger TokenExchanger,
	sanitizer security.NameSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:  userRepo,
		exchanger: exchanger,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// CreateAccount はアカウントを作成する。
// 同一IDのアカウントが既に存在する場合は既存レコードを返し、
// 重複作成は行わない（冪等）。戻り値のboolは既存だったかどうか。
func (s *Service) CreateAccount(ctx context.Context, id, displayName, email string) (*model.User, bool, error) {
	existing, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("既存アカウントの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	user := &model.User{
		ID:          id,
		DisplayName: s.sanitizer.Sanitize(displayName),
		Email:       email,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	s.logger.Info("アカウントを作成しました",
		slog.String("user_id", id),
	)

	return user, false, nil
}

// GetAccount はアカウントとストア管理の登録日時を取得する。
func (s *Service) GetAccount(ctx context.Context, id string) (*model.User, *store.Meta, error) {
	user, meta, err := s.userRepo.FindByIDWithMeta(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUserNotFoundError(id)
	}
	return user, meta, nil
}

// DeleteAccount はアカウントを削除する。存在しない場合も成功とする（冪等）。
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.userRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	s.logger.Info("アカウントを削除しました",
		slog.String("user_id", id),
	)

	return nil
}

// StoreAuthTokens は認可コードをトークンの組に交換し、アカウントへ保存する。
// アカウントが存在しない場合はUSER_NOT_FOUND、交換失敗はEXTERNAL_SERVICE_ERROR。
func (s *Service) StoreAuthTokens(ctx context.Context, userID, code string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(userID)
	}

	pair, err := s.exchanger.ExchangeAuthCode(ctx, code)
	if err != nil {
		s.logger.Error("認可コードの交換に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewExternalServiceError("spotify", "認可コードの交換に失敗しました")
	}

	if err := s.userRepo.SetTokens(ctx, userID, pair.AccessToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}

	s.logger.Info("Spotifyトークンを保存しました",
		slog.String("user_id", userID),
	)

	return nil
}
