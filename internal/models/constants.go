package models

const (
	// Collection names. Text chunks and image descriptions live in separate
	// embedding spaces and are never ranked against each other.
	TextCollection  = "text_chunks"
	ImageCollection = "image_descriptions"

	ContentTypeText  = "text"
	ContentTypeImage = "image"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinParagraph = 50

	DefaultTopK          = 5
	DefaultMinScore      = 0.1
	DefaultImageMinScore = 0.05

	// Sufficiency thresholds observed to work for direct Q&A.
	DefaultHighScore = 0.3
	DefaultMeanScore = 0.25
)

// Metadata keys stored with every collection entry.
const (
	MetaDocumentID    = "document_id"
	MetaDocumentName  = "document_name"
	MetaSequenceIndex = "sequence_index"
	MetaContentType   = "content_type"
	MetaDocSeq        = "doc_seq"
)
