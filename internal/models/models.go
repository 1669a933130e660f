package models

import "time"

// DocumentInfo is the registry's view of one ingested document.
type DocumentInfo struct {
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	TextChunks int       `json:"text_chunks"`
	ImageCount int       `json:"image_count"`
}

// RetrievedChunk is one ranked retrieval result.
type RetrievedChunk struct {
	Text          string  `json:"text"`
	DocumentID    string  `json:"document_id"`
	DocumentName  string  `json:"document_name"`
	SequenceIndex int     `json:"sequence_index"`
	ContentType   string  `json:"content_type"`
	Score         float32 `json:"score"`
}

// Sufficiency summarizes whether a result set adequately covers a query.
type Sufficiency string

const (
	Sufficient   Sufficiency = "sufficient"
	Partial      Sufficiency = "partial"
	Insufficient Sufficiency = "insufficient"
)
