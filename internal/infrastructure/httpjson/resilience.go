package httpjson

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

// Classify retries transport errors and overloaded collaborators. Other
// 4xx answers mean a bad request and do not trip the breaker.
func Classify(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyShared(err); ok {
		return class
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := IsRetryableStatus(statusErr.StatusCode)
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Call runs fn through the executor with the collaborator classifier. A nil
// executor calls fn once.
func Call(ctx context.Context, exec *resilience.Executor, operation string, fn func(context.Context) error) error {
	var err error
	if exec == nil {
		err = fn(ctx)
	} else {
		err = exec.Execute(ctx, operation, fn, Classify)
	}
	return resilience.MarkTemporary(operation, err, Classify)
}
