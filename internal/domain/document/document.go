package document

import (
	"fmt"
	"strings"
)

// MaxSize caps a single uploaded document.
const MaxSize = 64 << 20 // 64MB

// Document is an uploaded binary payload plus its content-type tag.
// It lives for one extraction call and is never persisted by the service.
type Document struct {
	data        []byte
	contentType string
}

// New validates and creates a Document. contentType may be empty.
func New(data []byte, contentType string) (Document, error) {
	if len(data) > MaxSize {
		return Document{}, fmt.Errorf("document too large: %d bytes (max %d)", len(data), MaxSize)
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return Document{data: data, contentType: ct}, nil
}

// Data returns the raw bytes.
func (d Document) Data() []byte { return d.data }

// ContentType returns the media type without parameters, lowercased.
func (d Document) ContentType() string { return d.contentType }

// Len returns the payload size in bytes.
func (d Document) Len() int { return len(d.data) }

// Metadata keys set by the extractor. Absent values are omitted, never blank.
const (
	MetaFormat   = "format"
	MetaTitle    = "title"
	MetaAuthor   = "author"
	MetaSubject  = "subject"
	MetaKeywords = "keywords"
	MetaCreator  = "creator"
	MetaProducer = "producer"
	MetaSheets   = "sheets"
)

// ExtractedText is the immutable output of one extraction.
// PageCount is zero when the format has no notion of pages or it is unknown.
type ExtractedText struct {
	Text      string            `json:"text"`
	PageCount int               `json:"page_count,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SetMeta stores a metadata value, skipping empty ones.
func (e *ExtractedText) SetMeta(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
}
