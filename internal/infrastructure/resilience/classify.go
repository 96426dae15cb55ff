package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
)

// ClassifyShared handles outcomes common to every collaborator. The bool is
// false when the transport-specific classifier has to decide.
func ClassifyShared(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	case IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	default:
		return ErrorClassification{}, false
	}
}

// MarkTemporary tags retryable failures and open circuits with
// domain.ErrTemporary so adapters can answer 503.
func MarkTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classify == nil {
		classify = defaultClassifier
	}
	if classify(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
