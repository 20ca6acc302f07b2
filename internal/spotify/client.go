// Package spotify はSpotify Web APIのクライアントを提供する。
// トークンエンドポイント（認可コード交換・リフレッシュ）と
// 再生履歴エンドポイントの呼び出しを含む。
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/soundcircle/internal/model"
)

const (
	defaultTokenURL          = "https://accounts.spotify.com/api/token"
	defaultRecentlyPlayedURL = "https://api.spotify.com/v1/me/player/recently-played"

	// recentlyPlayedLimit は再生履歴APIの1回あたり最大取得件数。
	recentlyPlayedLimit = 50
)

// Config はSpotify APIクライアントの設定。
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	TokenURL          string
	RecentlyPlayedURL string
}

// TokenPair はトークンエンドポイントが返すトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Client はSpotify Web APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.RecentlyPlayedURL == "" {
		config.RecentlyPlayedURL = defaultRecentlyPlayedURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// ExchangeAuthCode は認可コードをトークンの組に交換する。
// レスポンスにアクセストークンまたはリフレッシュトークンが
// 欠けている場合はエラーとする。
func (c *Client) ExchangeAuthCode(ctx context.Context, code string) (*TokenPair, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.config.RedirectURL},
	}

	tokenResp, err := c.postToken(ctx, data)
	if err != nil {
		return nil, err
	}

	if tokenResp.AccessToken == "" || tokenResp.RefreshToken == "" {
		return nil, fmt.Errorf("トークンレスポンスに必須のトークンが含まれていません")
	}

	return &TokenPair{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
	}, nil
}

// RefreshAccessToken はリフレッシュトークンで新しいアクセストークンを取得する。
// レスポンスにリフレッシュトークンが含まれない場合はローテーションなしとみなし、
// 引数のリフレッシュトークンをそのまま返す。アクセストークンの欠落はエラー。
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	tokenResp, err := c.postToken(ctx, data)
	if err != nil {
		return nil, err
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("トークンレスポンスにアクセストークンが含まれていません")
	}

	newRefresh := tokenResp.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return &TokenPair{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: newRefresh,
	}, nil
}

// postToken はトークンエンドポイントへクライアント資格情報付きのフォームPOSTを行う。
func (c *Client) postToken(ctx context.Context, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("トークンエンドポイントの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("トークンエンドポイントの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("トークンエンドポイントがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("トークンエンドポイントがステータス %d を返しました", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("トークンレスポンスのパースに失敗しました: %w", err)
	}

	return &tokenResp, nil
}

// recentlyPlayedResponse は再生履歴エンドポイントのレスポンス。
type recentlyPlayedResponse struct {
	Items []recentlyPlayedItem `json:"items"`
}

type recentlyPlayedItem struct {
	Track    trackObject `json:"track"`
	PlayedAt string      `json:"played_at"`
}

type trackObject struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Popularity   int               `json:"popularity"`
	DurationMS   int               `json:"duration_ms"`
	Explicit     bool              `json:"explicit"`
	ExternalURLs map[string]string `json:"external_urls"`
	Album        albumObject       `json:"album"`
	Artists      []artistObject    `json:"artists"`
}

type albumObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type artistObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecentlyPlayed はユーザーの再生履歴を取得し、[start, end)の時間窓で
// クライアント側フィルタリングした結果を返す。
// APIは件数ベースの直近取得しか提供しないため、窓の境界判定は
// サーバー側に委ねずローカルで行う。
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string, start, end time.Time) ([]model.TrackStream, error) {
	reqURL := c.config.RecentlyPlayedURL + "?limit=" + strconv.Itoa(recentlyPlayedLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("再生履歴APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("再生履歴APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("再生履歴APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("再生履歴APIがステータス %d を返しました", resp.StatusCode)
	}

	var result recentlyPlayedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("再生履歴レスポンスのパースに失敗しました: %w", err)
	}

	streams := make([]model.TrackStream, 0, len(result.Items))
	for i, item := range result.Items {
		stream, err := convertItem(item)
		if err != nil {
			return nil, fmt.Errorf("再生履歴の%d番目の項目が不正です: %w", i, err)
		}
		// 窓の開始は含み、終了は含まない
		if stream.PlayedAt.Before(start) || !stream.PlayedAt.Before(end) {
			continue
		}
		streams = append(streams, *stream)
	}

	return streams, nil
}

// convertItem はAPIの再生履歴項目を内部表現へ変換する。
// 必須フィールドの欠落はエラーとする。
func convertItem(item recentlyPlayedItem) (*model.TrackStream, error) {
	if item.Track.ID == "" {
		return nil, fmt.Errorf("トラックIDがありません")
	}
	if item.Track.Name == "" {
		return nil, fmt.Errorf("トラック名がありません")
	}
	if item.PlayedAt == "" {
		return nil, fmt.Errorf("再生時刻がありません")
	}

	playedAt, err := time.Parse(time.RFC3339, item.PlayedAt)
	if err != nil {
		return nil, fmt.Errorf("再生時刻のパースに失敗しました: %w", err)
	}

	artists := make([]model.TrackArtist, 0, len(item.Track.Artists))
	for _, a := range item.Track.Artists {
		artists = append(artists, model.TrackArtist{
			ArtistID:   a.ID,
			ArtistName: a.Name,
		})
	}

	return &model.TrackStream{
		TrackID:    item.Track.ID,
		Name:       item.Track.Name,
		Popularity: item.Track.Popularity,
		Duration:   item.Track.DurationMS,
		Explicit:   item.Track.Explicit,
		URL:        item.Track.ExternalURLs["spotify"],
		AlbumID:    item.Track.Album.ID,
		AlbumName:  item.Track.Album.Name,
		Artists:    artists,
		PlayedAt:   playedAt,
	}, nil
}
