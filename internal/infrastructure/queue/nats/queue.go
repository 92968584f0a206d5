package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/fin-extract/internal/infrastructure/resilience"
)

// ExtractionRequested is the message published for asynchronous extraction.
type ExtractionRequested struct {
	SourceRef   string    `json:"sourceRef"`
	RequestedAt time.Time `json:"requestedAt"`
}

func encodeRequest(sourceRef string, now time.Time) ([]byte, error) {
	return json.Marshal(ExtractionRequested{SourceRef: sourceRef, RequestedAt: now.UTC()})
}

// decodeRequest also accepts a bare source reference as payload.
func decodeRequest(data []byte) (ExtractionRequested, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return ExtractionRequested{}, errors.New("empty extraction request")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return ExtractionRequested{SourceRef: trimmed}, nil
	}
	var msg ExtractionRequested
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return ExtractionRequested{}, fmt.Errorf("decode extraction request: %w", err)
	}
	if msg.SourceRef == "" {
		return ExtractionRequested{}, errors.New("extraction request without sourceRef")
	}
	return msg, nil
}

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	onLag    func(time.Duration)
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// OnQueueLag receives the delay between publish and delivery.
	OnQueueLag func(time.Duration)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
		nats.Name("fin-extract"),
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
		onLag:    options.OnQueueLag,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishExtractionRequested(ctx context.Context, sourceRef string) error {
	payload, err := encodeRequest(sourceRef, time.Now())
	if err != nil {
		return fmt.Errorf("encode extraction request: %w", err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

// SubscribeExtractionRequested blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeExtractionRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		req, err := decodeRequest(msg.Data)
		if err != nil {
			slog.Warn("extraction_request_rejected", "error", err)
			return
		}
		if q.onLag != nil && !req.RequestedAt.IsZero() {
			q.onLag(time.Since(req.RequestedAt))
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req.SourceRef); err != nil {
			slog.Error("worker_handler_failed", "source_ref", req.SourceRef, "error", err)
		}
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
