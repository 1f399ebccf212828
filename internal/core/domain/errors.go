package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTemporary           = errors.New("temporary failure")
	ErrUnsupportedDocument = errors.New("unsupported document")
	ErrProcessing          = errors.New("processing failed")
	ErrLLMProcessing       = errors.New("llm processing failed")
	ErrConnectorNotFound   = errors.New("connector not found")
	ErrLLMNotConfigured    = errors.New("llm endpoint is not configured")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UnsupportedDocumentError means no extraction strategy exists for the file extension.
type UnsupportedDocumentError struct {
	Extension string
}

func (e *UnsupportedDocumentError) Error() string {
	if e.Extension == "" {
		return "unsupported document: file has no extension"
	}
	return fmt.Sprintf("unsupported document type: .%s", e.Extension)
}

func (e *UnsupportedDocumentError) Is(target error) bool {
	return target == ErrUnsupportedDocument
}

// ProcessingError covers missing files, failed tools and malformed intermediate state.
// Stderr holds captured tool output when a subprocess failed.
type ProcessingError struct {
	Operation string
	Stderr    string
	Err       error
}

func (e *ProcessingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}

// LLMProcessingError is raised when the LLM backend is unreachable or answers with a non-2xx status.
type LLMProcessingError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *LLMProcessingError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s: status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Operation, e.Err)
}

func (e *LLMProcessingError) Unwrap() error { return e.Err }

func (e *LLMProcessingError) Is(target error) bool {
	return target == ErrLLMProcessing
}
