package models

// QueryTextRequest is the body of POST /api/v1/queries/text.
type QueryTextRequest struct {
	Query string `json:"query" binding:"required"`
	Short bool   `json:"short,omitempty"`
}

// CrawlRequest is the body of POST /api/v1/crawl.
type CrawlRequest struct {
	URL string `json:"url" binding:"required"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	K     int    `json:"k,omitempty"`
}
