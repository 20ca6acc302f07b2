// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// IDは外部認証システムが発行するidentity文字列をそのまま使用する。
// AccessTokenとRefreshTokenは両方揃っているときのみ有効なトークンとして扱う。
// 片方だけの状態は「トークンなし」と同義（HasTokensを参照）。
type User struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"displayName"`
	Email             string    `json:"email"`
	AccessToken       string    `json:"accessToken,omitempty"`
	RefreshToken      string    `json:"refreshToken,omitempty"`
	TokensLastUpdated *time.Time `json:"tokensLastUpdated,omitempty"`
}

// HasTokens はアクセストークンとリフレッシュトークンの両方を保持しているかを返す。
// トークンリフレッシュ対象の判定に使用する。
func (u *User) HasTokens() bool {
	return u.AccessToken != "" && u.RefreshToken != ""
}
