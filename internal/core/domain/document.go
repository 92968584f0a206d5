package domain

import "time"

// StoredObject is a file accepted by the object storage collaborator.
type StoredObject struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"fileUrl"`
}

// ExtractedText is what the text extractor produced for one source.
type ExtractedText struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// ExtractionRecord is persisted once per successful extraction and never updated.
type ExtractionRecord struct {
	ID            string               `json:"id"`
	SourceRef     string               `json:"sourceRef"`
	ExtractedText string               `json:"extractedText"`
	Structured    StructuredFinancials `json:"structured"`
	CreatedAt     time.Time            `json:"createdAt"`
}
