package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// classifyNATSError retries connection-level failures. Oversized payloads
// are a caller bug and do not count against the breaker.
func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyShared(err); ok {
		return class
	}
	for _, transient := range transientNATSErrors {
		if errors.Is(err, transient) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	if errors.Is(err, nats.ErrMaxPayload) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
