package domain

import "time"

// DocumentStatus tracks how far the pipeline has advanced for a document.
type DocumentStatus string

const (
	StatusNew                   DocumentStatus = "new"
	StatusTextExtracted         DocumentStatus = "text_extracted"
	StatusClassified            DocumentStatus = "classified"
	StatusDataExtracted         DocumentStatus = "data_extracted"
	StatusIntegrationsTriggered DocumentStatus = "integrations_triggered"
)

var statusRank = map[DocumentStatus]int{
	StatusNew:                   0,
	StatusTextExtracted:         1,
	StatusClassified:            2,
	StatusDataExtracted:         3,
	StatusIntegrationsTriggered: 4,
}

// Rank orders statuses along the pipeline. Unknown statuses rank as new.
func (s DocumentStatus) Rank() int {
	return statusRank[s]
}

// Advance returns the later of s and next. Re-running an earlier stage never moves a document backwards.
func (s DocumentStatus) Advance(next DocumentStatus) DocumentStatus {
	if next.Rank() > s.Rank() {
		return next
	}
	if s == "" {
		return next
	}
	return s
}

// UnknownDocumentType is the classifier's escape hatch when no configured type fits.
const UnknownDocumentType = "unknown"

type Document struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mime_type"`
	StoragePath   string         `json:"storage_path"`
	Text          string         `json:"text,omitempty"`
	DocumentType  string         `json:"document_type,omitempty"`
	TargetDoctype string         `json:"target_doctype,omitempty"`
	Confidence    float64        `json:"confidence"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
	Usage         Usage          `json:"usage"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasKnownType reports whether classification produced a usable document type.
func (d *Document) HasKnownType() bool {
	return d.DocumentType != "" && d.DocumentType != UnknownDocumentType
}

// ClassificationResult is transient; it is folded into the Document by the pipeline.
type ClassificationResult struct {
	DocumentType  string      `json:"document_type"`
	Confidence    float64     `json:"confidence"`
	Reasoning     string      `json:"reasoning,omitempty"`
	TargetDoctype string      `json:"target_doctype,omitempty"`
	Usage         *TokenUsage `json:"token_usage,omitempty"`
}

// Unknown builds the fallback classification.
func Unknown(confidence float64) ClassificationResult {
	return ClassificationResult{DocumentType: UnknownDocumentType, Confidence: confidence}
}

// ExtractionResult carries structured fields plus the token usage side-channel.
// Usage is never persisted together with Data.
type ExtractionResult struct {
	Data  map[string]any `json:"data"`
	Usage *TokenUsage    `json:"token_usage,omitempty"`
}

// ClassifyInput is what a classifier sees: text, or a file when text is empty.
// LLM selects the backend for the owning user.
type ClassifyInput struct {
	Text     string
	FilePath string
	Types    []DocumentType
	LLM      LLMSettings
}

type ExtractInput struct {
	Text     string
	FilePath string
	Type     DocumentType
	LLM      LLMSettings
}

// ExtractOptions are the per-user OCR knobs for text extraction.
type ExtractOptions struct {
	OCREnabled bool
	Languages  []string
}

// LabeledSample is a previously classified document used to train the local model.
type LabeledSample struct {
	Text         string
	DocumentType string
}

// Stage names a pipeline step.
type Stage string

const (
	StageExtractText   Stage = "extract_text"
	StageClassify      Stage = "classify"
	StageExtractFields Stage = "extract_fields"
	StageIntegrations  Stage = "integrations"
	StageProcessAll    Stage = "process_all"
)

// StageResult is the stage-level failure signal surfaced to callers.
type StageResult struct {
	Stage    Stage     `json:"stage"`
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Document *Document `json:"document,omitempty"`
}
