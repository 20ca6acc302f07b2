package model

import "time"

// TrackArtist は再生トラックのアーティスト情報を表す。
type TrackArtist struct {
	ArtistID   string `json:"artistId"`
	ArtistName string `json:"artistName"`
}

// TrackStream は1回のトラック再生イベントを表す。
type TrackStream struct {
	TrackID    string        `json:"trackId"`
	Name       string        `json:"name"`
	Popularity int           `json:"popularity"`
	Duration   int           `json:"duration"`
	Explicit   bool          `json:"explicit"`
	URL        string        `json:"url"`
	AlbumID    string        `json:"albumId"`
	AlbumName  string        `json:"albumName"`
	Artists    []TrackArtist `json:"artists"`
	UserID     string        `json:"userId"`
	PlayedAt   time.Time     `json:"playedAt"`
}

// HourlyScrape はユーザー1人の1時間分の再生履歴スクレイプ結果を表す。
// 再生イベントが1件もない時間帯にはドキュメント自体を作成しない。
// レコードの不在は「その時間は何も再生されなかった」を意味する。
type HourlyScrape struct {
	Streams []TrackStream `json:"streams"`
	Date    string        `json:"date"` // 設定タイムゾーンのISO日付（YYYY-MM-DD）
	Hour    int           `json:"hour"` // 0-23
	UserID  string        `json:"userId"`
}
