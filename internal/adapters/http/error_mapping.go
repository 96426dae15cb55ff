package httpadapter

import (
	"net/http"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrEmptyQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTraceNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCollaboratorUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
