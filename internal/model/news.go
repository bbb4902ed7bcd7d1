package model

import "time"

// NewsItem はCMSのRSSフィードから取得したお知らせ記事。
type NewsItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary"`
	Image       string    `json:"image"`
	PublishedAt time.Time `json:"publishedAt"`
}
