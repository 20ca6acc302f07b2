package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockDeleter はAccountDeleterのモック実装。
type mockDeleter struct {
	deleteFunc func(ctx context.Context, id string) error
}

func (m *mockDeleter) DeleteAccount(ctx context.Context, id string) error {
	return m.deleteFunc(ctx, id)
}

func webhookTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestIdentityDeleted_Success(t *testing.T) {
	var deletedID string
	deleter := &mockDeleter{
		deleteFunc: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	h := NewWebhookHandler(deleter, "shared-secret", webhookTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity-deleted", strings.NewReader(`{"userId":"user-1"}`))
	req.Header.Set("X-Webhook-Secret", "shared-secret")
	w := httptest.NewRecorder()
	h.IdentityDeleted(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if deletedID != "user-1" {
		t.Errorf("deletedID = %q, want user-1", deletedID)
	}
}

func TestIdentityDeleted_RejectsBadSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"シークレットなし", ""},
		{"不一致", "wrong-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deleter := &mockDeleter{
				deleteFunc: func(ctx context.Context, id string) error {
					t.Fatal("deleter must not be called")
					return nil
				},
			}
			h := NewWebhookHandler(deleter, "shared-secret", webhookTestLogger())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/identity-deleted", strings.NewReader(`{"userId":"user-1"}`))
			if tt.secret != "" {
				req.Header.Set("X-Webhook-Secret", tt.secret)
			}
			w := httptest.NewRecorder()
			h.IdentityDeleted(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestIdentityDeleted_EmptyUserID(t *testing.T) {
	h := NewWebhookHandler(&mockDeleter{
		deleteFunc: func(ctx context.Context, id string) error {
			t.Fatal("deleter must not be called")
			return nil
		},
	}, "shared-secret", webhookTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity-deleted", strings.NewReader(`{"userId":""}`))
	req.Header.Set("X-Webhook-Secret", "shared-secret")
	w := httptest.NewRecorder()
	h.IdentityDeleted(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
