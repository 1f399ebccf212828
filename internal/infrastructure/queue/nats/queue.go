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

	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
)

const (
	// EnqueuedAtHeader carries the publish time of an ingest message (RFC 3339, nanoseconds).
	EnqueuedAtHeader = "Doc2sys-Enqueued-At"

	defaultQueueGroup = "workers"
	drainFlushTimeout = 5 * time.Second
)

// Queue carries document ids from ingest to the workers and publishes JSON events.
type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
	onLag    func(time.Duration)
	now      func() time.Time
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	// OnLag receives the time an ingest message spent queued, when the publisher stamped it.
	OnLag  func(time.Duration)
	Logger *slog.Logger
}

func (o Options) connectOptions(logger *slog.Logger) []nats.Option {
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	wait := o.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	reconnects := o.MaxReconnects
	if reconnects <= 0 {
		reconnects = 60
	}
	retry := true
	if o.RetryOnFailedConnect != nil {
		retry = *o.RetryOnFailedConnect
	}
	return []nats.Option{
		nats.Name("doc2sys"),
		nats.Timeout(timeout),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(reconnects),
		nats.RetryOnFailedConnect(retry),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats.disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats.reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

func New(url, subject string, options Options) (*Queue, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url, options.connectOptions(logger)...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewFromConn(conn, subject, options), nil
}

// NewFromConn wraps an existing connection. Close closes it.
func NewFromConn(conn *nats.Conn, subject string, options Options) *Queue {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	group := strings.TrimSpace(options.QueueGroup)
	if group == "" {
		group = defaultQueueGroup
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
		onLag:    options.OnLag,
		now:      time.Now,
		logger:   logger,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishDocumentIngested sends the bare document id, stamped with the enqueue time.
func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	msg := nats.NewMsg(q.subject)
	msg.Data = []byte(documentID)
	msg.Header.Set(EnqueuedAtHeader, q.now().UTC().Format(time.RFC3339Nano))
	return q.publish(ctx, msg)
}

// PublishJSON marshals payload and publishes it on subject.
func (q *Queue) PublishJSON(ctx context.Context, subject string, payload any) error {
	if strings.TrimSpace(subject) == "" {
		return errors.New("nats publish: empty subject")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal nats payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = body
	msg.Header.Set("Content-Type", "application/json")
	return q.publish(ctx, msg)
}

func (q *Queue) publish(ctx context.Context, msg *nats.Msg) error {
	_, err := resilience.Do(ctx, q.executor, "nats.publish", func(context.Context) (struct{}, error) {
		if err := q.conn.PublishMsg(msg); err != nil {
			return struct{}{}, fmt.Errorf("nats publish %s: %w", msg.Subject, err)
		}
		return struct{}{}, nil
	}, classifyNATSError)
	return temporary("nats publish", err)
}

// SubscribeDocumentIngested blocks until ctx is done, then drains in-flight messages.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		documentID := strings.TrimSpace(string(msg.Data))
		if documentID == "" {
			q.logger.Warn("nats.empty_message", "subject", msg.Subject)
			return
		}
		q.observeLag(msg)

		if err := handler(ctx, documentID); err != nil {
			q.logger.Error("worker.handler_failed", "document_id", documentID, "error", err)
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
	if err := q.conn.FlushTimeout(drainFlushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) observeLag(msg *nats.Msg) {
	if q.onLag == nil || msg.Header == nil {
		return
	}
	lag, ok := enqueueLag(msg.Header.Get(EnqueuedAtHeader), q.now())
	if ok {
		q.onLag(lag)
	}
}

func enqueueLag(stamp string, now time.Time) (time.Duration, bool) {
	if stamp == "" {
		return 0, false
	}
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return 0, false
	}
	lag := now.Sub(at)
	if lag < 0 {
		lag = 0
	}
	return lag, true
}
