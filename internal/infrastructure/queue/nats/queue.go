package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/infrastructure/resilience"
)

const traceWritersGroup = "trace-writers"

// Queue carries retrieval trace events between the API and the trace worker.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	name := options.Name
	if name == "" {
		name = "multimodal-rag"
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRetrievalTrace(ctx context.Context, trace domain.RetrievalTrace) error {
	data, err := encodeTrace(trace)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats_publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.MarkTemporary("nats_publish", err, classifyNATSError)
}

// SubscribeRetrievalTraces blocks until ctx is done, then drains the
// subscription.
func (q *Queue) SubscribeRetrievalTraces(ctx context.Context, handler func(context.Context, domain.RetrievalTrace) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, traceWritersGroup, func(msg *nats.Msg) {
		handleMessage(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func handleMessage(ctx context.Context, data []byte, handler func(context.Context, domain.RetrievalTrace) error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}

	trace, err := decodeTrace(data)
	if err != nil {
		slog.Warn("trace_decode_failed", "bytes", len(data), "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, trace); err != nil {
		slog.Error("trace_handler_failed", "trace_id", trace.ID, "error", err)
	}
}

func encodeTrace(trace domain.RetrievalTrace) ([]byte, error) {
	data, err := json.Marshal(trace)
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	return data, nil
}

func decodeTrace(data []byte) (domain.RetrievalTrace, error) {
	var trace domain.RetrievalTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return domain.RetrievalTrace{}, fmt.Errorf("decode trace: %w", err)
	}
	if trace.ID == "" {
		return domain.RetrievalTrace{}, domain.WrapError(domain.ErrInvalidInput, "decode trace", fmt.Errorf("missing id"))
	}
	return trace, nil
}
