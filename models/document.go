package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Metadata keys stored with every index entry.
const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
)

// Document is one logical unit of ingested content.
// ID is the file name plus extension, e.g. "handbook.pdf" or "example_com.txt".
type Document struct {
	ID       string
	Text     string
	Metadata DocumentMetadata
}

// DocumentMetadata is the sidecar record written next to every stored document.
type DocumentMetadata struct {
	FileName      string    `json:"file_name"`
	FileExtension string    `json:"file_extension"`
	Date          time.Time `json:"date"`
	Size          int64     `json:"size"`
	CrawledURLs   []string  `json:"crawled_urls,omitempty"`
	Checksum      string    `json:"checksum,omitempty"`
}

// DocumentID joins the file name and extension into the knowledge base identifier.
func (m DocumentMetadata) DocumentID() string {
	return m.FileName + m.FileExtension
}

// Chunk is a contiguous slice of a document's text. The first Overlap runes
// repeat the tail of the previous chunk.
type Chunk struct {
	Index   int
	Text    string
	Overlap int
}

// Body returns the chunk text without the part shared with the previous chunk.
func (c Chunk) Body() string {
	if c.Overlap == 0 {
		return c.Text
	}
	return string([]rune(c.Text)[c.Overlap:])
}

// IndexEntry is the unit persisted in a vector store.
type IndexEntry struct {
	ID         string
	Vector     []float32
	Text       string
	DocumentID string
	ChunkIndex int
}

// EntryID builds the deterministic id of a chunk inside the vector store.
func EntryID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// Passage is a ranked query result.
type Passage struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Distance   float32 `json:"distance"`
}

// Filter is an equality predicate on entry metadata.
type Filter struct {
	Key   string
	Value string
}

// ByDocument matches every entry that belongs to the given document.
func ByDocument(documentID string) Filter {
	return Filter{Key: MetaDocumentID, Value: documentID}
}

// Matches reports whether an entry satisfies the filter.
func (f Filter) Matches(e IndexEntry) bool {
	switch f.Key {
	case MetaDocumentID:
		return e.DocumentID == f.Value
	case MetaChunkIndex:
		return strconv.Itoa(e.ChunkIndex) == f.Value
	default:
		return false
	}
}

// SplitDocumentID separates "name.ext" into its name and extension parts.
func SplitDocumentID(id string) (name, ext string) {
	i := strings.LastIndex(id, ".")
	if i <= 0 {
		return id, ""
	}
	return id[:i], id[i:]
}
