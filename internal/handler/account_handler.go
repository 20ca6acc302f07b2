package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/soundcircle/internal/middleware"
	"github.com/hitoshi/soundcircle/internal/model"
	"github.com/hitoshi/soundcircle/internal/store"
)

// AccountServiceInterface はアカウントサービスのインターフェース。
type AccountServiceInterface interface {
	CreateAccount(ctx context.Context, id, displayName, email string) (*model.User, bool, error)
	GetAccount(ctx context.Context, id string) (*model.User, *store.Meta, error)
	DeleteAccount(ctx context.Context, id string) error
	StoreAuthTokens(ctx context.Context, userID, code string) error
}

// AccountHandler はアカウント関連のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerの新しいインスタンスを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// createAccountRequest はアカウント作成リクエスト。
type createAccountRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// accountResponse はアカウントレスポンス。
type accountResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// CreateAccount はアカウント作成を処理する。
// POST /api/accounts
// 同一IDの再作成は既存レコードを200で返す（冪等）。
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	if strings.TrimSpace(req.DisplayName) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("displayNameが空です"))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("emailが空です"))
		return
	}

	user, existed, err := h.service.CreateAccount(r.Context(), userID, req.DisplayName, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, accountResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	})
}

// accountDetailResponse は自身のアカウント取得レスポンス。
// ストア管理の登録日時を含む。
type accountDetailResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GetAccount は自身のアカウント情報を返す。
// GET /api/accounts/me
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, meta, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, accountDetailResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		CreatedAt:   meta.Created,
	})
}

// DeleteAccount は自身のアカウント削除を処理する。
// DELETE /api/accounts/me
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// submitAuthCodeRequest はSpotify認可コード送信リクエスト。
type submitAuthCodeRequest struct {
	Code string `json:"code"`
}

// SubmitAuthCode はSpotify認可コードの取り込みを処理する。
// POST /api/spotify/auth-code
func (h *AccountHandler) SubmitAuthCode(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req submitAuthCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	if strings.TrimSpace(req.Code) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("codeが空です"))
		return
	}

	if err := h.service.StoreAuthTokens(r.Context(), userID, req.Code); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
