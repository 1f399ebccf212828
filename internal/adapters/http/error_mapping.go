package httpadapter

import (
	"net/http"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// errorMapping binds a domain error kind to a status and a stable code clients can switch on.
// Order matters: the first matching kind wins.
type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
	{domain.ErrConnectorNotFound, http.StatusNotFound, "connector_not_found"},
	{domain.ErrUnsupportedDocument, http.StatusUnsupportedMediaType, "unsupported_document"},
	{domain.ErrLLMProcessing, http.StatusBadGateway, "llm_failed"},
	{domain.ErrTemporary, http.StatusServiceUnavailable, "temporarily_unavailable"},
	{domain.ErrProcessing, http.StatusUnprocessableEntity, "processing_failed"},
}

const internalErrorCode = "internal"

// temporaryRetryAfter is sent with 503s so clients back off instead of hammering a tripped breaker.
const temporaryRetryAfter = "5"

func classifyError(err error) (int, string) {
	for _, m := range errorMappings {
		if domain.IsKind(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, internalErrorCode
}

func mapErrorToHTTPStatus(err error) int {
	status, _ := classifyError(err)
	return status
}
