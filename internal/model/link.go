package model

import "time"

// ShortLink represents a shortened URL entry in the system
type ShortLink struct {
	ID             int64      `json:"-" db:"id"`
	ShortCode      string     `json:"short_code" db:"short_code"`
	OriginalURL    string     `json:"original_url" db:"original_url"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ClickCount     int64      `json:"click_count" db:"click_count"`
	LastAccessed   *time.Time `json:"last_accessed,omitempty" db:"last_accessed"`
	CreatedByKeyID *int64     `json:"-" db:"created_by_key_id"`
}
