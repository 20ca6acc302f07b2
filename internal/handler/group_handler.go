package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/soundcircle/internal/middleware"
	"github.com/hitoshi/soundcircle/internal/model"
)

// GroupServiceInterface はグループサービスのインターフェース。
type GroupServiceInterface interface {
	CreateGroup(ctx context.Context, title, creatorID string) (*model.Group, error)
	JoinGroup(ctx context.Context, groupID, userID string) error
	LeaveGroup(ctx context.Context, groupID, userID string) error
}

// GroupHandler はグループ関連のHTTPハンドラー。
type GroupHandler struct {
	service GroupServiceInterface
}

// NewGroupHandler はGroupHandlerの新しいインスタンスを生成する。
func NewGroupHandler(service GroupServiceInterface) *GroupHandler {
	return &GroupHandler{service: service}
}

// createGroupRequest はグループ作成リクエスト。
type createGroupRequest struct {
	Title string `json:"title"`
}

// groupResponse はグループレスポンス。
type groupResponse struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Members []string `json:"members"`
}

// CreateGroup はグループ作成を処理する。
// POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("titleが空です"))
		return
	}

	group, err := h.service.CreateGroup(r.Context(), req.Title, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, groupResponse{
		ID:      group.ID,
		Title:   group.Title,
		Members: group.Members,
	})
}

// JoinGroup はグループ参加を処理する。
// POST /api/groups/{id}/join
func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	groupID := chi.URLParam(r, "id")
	if groupID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("グループIDが空です"))
		return
	}

	if err := h.service.JoinGroup(r.Context(), groupID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LeaveGroup はグループ脱退を処理する。
// POST /api/groups/{id}/leave
func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	groupID := chi.URLParam(r, "id")
	if groupID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("グループIDが空です"))
		return
	}

	if err := h.service.LeaveGroup(r.Context(), groupID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
