package domain

import "time"

// Document is a file stored in the local knowledge base.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentChunk is one overlapping word window of a document.
type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	TokenCount int    `json:"token_count"`
}

// KnowledgeSearchResult is a ranked chunk.
type KnowledgeSearchResult struct {
	Chunk   DocumentChunk `json:"chunk"`
	DocName string        `json:"doc_name"`
	Score   float64       `json:"score"`
}
