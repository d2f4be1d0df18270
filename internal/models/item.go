package models

import "time"

// ArchivedItem is one logical URL under archival.
// URL is unique within the primary store; ID is the join key used by
// artifacts, metadata and summaries.
type ArchivedItem struct {
	ID             string    `json:"id" badgerhold:"key"`
	URL            string    `json:"url"`
	Name           string    `json:"name,omitempty"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ItemMetadata holds structured content extracted by an archiver backend
// (title, byline, readable text). Primary-store only; never replicated.
type ItemMetadata struct {
	ItemID    string    `json:"item_id"`
	Archiver  string    `json:"archiver"`
	Title     string    `json:"title,omitempty"`
	Byline    string    `json:"byline,omitempty"`
	SiteName  string    `json:"site_name,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	Text      string    `json:"text,omitempty"`
	Language  string    `json:"language,omitempty"`
	WordCount int       `json:"word_count,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemSummary is an LLM-generated summary of an item's extracted text.
// Primary-store only; never replicated.
type ItemSummary struct {
	ItemID    string    `json:"item_id"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
