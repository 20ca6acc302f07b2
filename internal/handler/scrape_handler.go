package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/soundcircle/internal/middleware"
	"github.com/hitoshi/soundcircle/internal/model"
)

// ScrapeHistoryInterface は時間別スクレイプの読み取りインターフェース。
type ScrapeHistoryInterface interface {
	ListByUser(ctx context.Context, userID string) ([]*model.HourlyScrape, error)
}

// ScrapeHandler は再生履歴スクレイプの読み取りハンドラー。
type ScrapeHandler struct {
	history ScrapeHistoryInterface
}

// NewScrapeHandler はScrapeHandlerの新しいインスタンスを生成する。
func NewScrapeHandler(history ScrapeHistoryInterface) *ScrapeHandler {
	return &ScrapeHandler{history: history}
}

// ListScrapes は認証ユーザー自身の時間別スクレイプ一覧を返す。
// GET /api/scrapes
// レコードが存在しない時間帯は一覧に現れない（空の時間帯は書き込まれないため）。
func (h *ScrapeHandler) ListScrapes(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	scrapes, err := h.history.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, scrapes)
}
