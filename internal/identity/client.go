// Package identity は外部ID基盤（認証プロバイダー）との連携を提供する。
// ユーザーの存在確認とトークン検証を行うAPIクライアントを含む。
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrUserNotFound はID基盤にユーザーが存在しないことを示す。
// 通信エラーとは区別される確定的な不在判定にのみ使用する。
var ErrUserNotFound = errors.New("identity: user not found")

// ErrInvalidToken はトークンが無効であることを示す。
var ErrInvalidToken = errors.New("identity: invalid token")

// IdentityUser はID基盤が保持するユーザー情報。
type IdentityUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Oracle はID基盤への問い合わせインターフェース。
type Oracle interface {
	// GetUser は指定IDのユーザーをID基盤から取得する。
	// ユーザーが確定的に存在しない場合はErrUserNotFoundを返す。
	// 通信失敗や不明なエラーは別のエラーとして返す（呼び出し元は削除を控える）。
	GetUser(ctx context.Context, userID string) (*IdentityUser, error)

	// VerifyToken はBearerトークンを検証し、対応するユーザーを返す。
	// 無効なトークンはErrInvalidToken。
	VerifyToken(ctx context.Context, token string) (*IdentityUser, error)
}

// Client はID基盤のHTTP APIクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
}

// NewClient はClientを生成する。baseURLは末尾スラッシュなしで指定する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// GetUser は指定IDのユーザーをID基盤から取得する。
// 404はErrUserNotFound、その他の異常はすべて通信エラー扱いとする。
func (c *Client) GetUser(ctx context.Context, userID string) (*IdentityUser, error) {
	reqURL := c.baseURL + "/v1/users/" + userID

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ID基盤APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
		)
		return nil, fmt.Errorf("ID基盤APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ID基盤APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("user_id", userID),
		)
		return nil, fmt.Errorf("ID基盤APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var user IdentityUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("ID基盤のレスポンスにユーザーIDが含まれていません")
	}

	return &user, nil
}

// verifyTokenResponse はトークン検証エンドポイントのレスポンス。
type verifyTokenResponse struct {
	Valid bool         `json:"valid"`
	User  IdentityUser `json:"user"`
}

// VerifyToken はBearerトークンを検証し、対応するユーザーを返す。
func (c *Client) VerifyToken(ctx context.Context, token string) (*IdentityUser, error) {
	reqURL := c.baseURL + "/v1/tokens/verify"

	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("トークン検証APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("トークン検証APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("トークン検証APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result verifyTokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if !result.Valid || result.User.ID == "" {
		return nil, ErrInvalidToken
	}

	return &result.User, nil
}

// compile-time interface check
var _ Oracle = (*Client)(nil)
