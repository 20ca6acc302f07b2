package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/soundcircle/internal/model"
)

// AccountDeleter はアカウント削除の実行インターフェース。
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, id string) error
}

// WebhookHandler は外部認証システムからのイベント通知を処理する。
type WebhookHandler struct {
	deleter AccountDeleter
	secret  string
	logger  *slog.Logger
}

// NewWebhookHandler はWebhookHandlerの新しいインスタンスを生成する。
func NewWebhookHandler(deleter AccountDeleter, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		deleter: deleter,
		secret:  secret,
		logger:  logger,
	}
}

// identityDeletedRequest はID削除イベントのペイロード。
type identityDeletedRequest struct {
	UserID string `json:"userId"`
}

// IdentityDeleted はID基盤でのユーザー削除イベントを処理し、
// 対応するアカウントレコードを削除する。
// POST /webhooks/identity-deleted
// X-Webhook-Secretヘッダーで共有シークレットを検証する。
func (h *WebhookHandler) IdentityDeleted(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req identityDeletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("userIdが空です"))
		return
	}

	if err := h.deleter.DeleteAccount(r.Context(), req.UserID); err != nil {
		h.logger.Error("ID削除イベントの処理に失敗しました",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	h.logger.Info("ID削除イベントを処理しました",
		slog.String("user_id", req.UserID),
	)

	w.WriteHeader(http.StatusNoContent)
}
