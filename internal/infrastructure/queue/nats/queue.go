package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/infrastructure/resilience"
)

const DefaultSubject = "submissions.finished"

// SubmissionFinished is the payload published once a submission is done or
// error.
type SubmissionFinished struct {
	SubmissionID    string                  `json:"submissionId"`
	UserID          string                  `json:"userId"`
	Status          domain.SubmissionStatus `json:"status"`
	Error           string                  `json:"error,omitempty"`
	PlagiarismScore *int                    `json:"plagiarismScore,omitempty"`
	AIProbability   *float64                `json:"aiProbability,omitempty"`
	FinishedAt      time.Time               `json:"finishedAt"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

type Queue struct {
	conn     *nats.Conn
	pub      publisher
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
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
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("plagioguard-api"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	q := newQueue(conn, subject, options.ResilienceExecutor, logger)
	q.conn = conn
	return q, nil
}

func newQueue(pub publisher, subject string, executor *resilience.Executor, logger *slog.Logger) *Queue {
	return &Queue{
		pub:      pub,
		subject:  subject,
		executor: executor,
		logger:   logger,
	}
}

// Close drains pending publishes before closing the connection.
func (q *Queue) Close() {
	if q.conn == nil {
		return
	}
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishSubmissionFinished(ctx context.Context, sub *domain.Submission) error {
	if sub == nil {
		return nil
	}
	payload, err := json.Marshal(eventFor(sub, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal submission event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.pub.Publish(q.subject, payload); err != nil {
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
		if classifyPublishError(err).Retryable {
			return domain.WrapError(domain.ErrTemporary, "nats publish", err)
		}
		return err
	}
	q.logger.Debug("submission_event_published", "submission_id", sub.ID, "subject", q.subject)
	return nil
}

func eventFor(sub *domain.Submission, at time.Time) SubmissionFinished {
	ev := SubmissionFinished{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		Status:       sub.Report.Status,
		Error:        sub.Report.Error,
		FinishedAt:   at,
	}
	if p := sub.Report.Plagiarism; p != nil {
		score := p.Score
		ev.PlagiarismScore = &score
	}
	if ai := sub.Report.AIGenerated; ai != nil {
		prob := ai.Probability
		ev.AIProbability = &prob
	}
	return ev
}

// classifyPublishError extends the network classification with the client
// errors nats reports while the connection is down or reconnecting.
func classifyPublishError(err error) resilience.ErrorClassification {
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ClassifyNetwork(err)
}
