package domain

import "time"

// URLRecord represents a shortened URL entry.
type URLRecord struct {
	ID          int64
	LongURL     string
	ShortCode   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AccessCount int64
}

// Clone creates a copy of the record.
func (r *URLRecord) Clone() *URLRecord {
	c := *r
	return &c
}
