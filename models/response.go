package models

import "time"

// MessageResponse is the generic JSON reply for mutations.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// DocumentsResponse lists the documents in the knowledge base.
type DocumentsResponse struct {
	Count     int                `json:"count"`
	Documents []DocumentMetadata `json:"documents"`
}

// SearchResponse returns the ranked passages for a query.
type SearchResponse struct {
	Count    int       `json:"count"`
	Passages []Passage `json:"passages"`
}

// CrawlStatus is the externally visible state of a background crawl.
type CrawlStatus struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	State      string            `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Document   *DocumentMetadata `json:"document,omitempty"`
	Error      string            `json:"error,omitempty"`
}
