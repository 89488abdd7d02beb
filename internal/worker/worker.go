// Package worker provides a NATS worker that serves synthesis requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/lipsync-service/internal/core"
)

// QueueGroup spreads requests across every running worker.
const QueueGroup = "lipsync-workers"

// DefaultHandleTimeout bounds one request when no timeout is configured.
const DefaultHandleTimeout = 15 * time.Minute

var (
	// ErrSubjectEmpty indicates that no subject was configured.
	ErrSubjectEmpty = errors.New("synthesis subject cannot be empty")
	// ErrSynthesizerNil indicates a worker without a pipeline.
	ErrSynthesizerNil = errors.New("synthesizer cannot be nil")
)

const (
	logFmtParseFailed     = "Failed to parse synthesis request: %v"
	logFmtSynthesisFailed = "Synthesis failed for workflow %s: %v"
	logFmtReplyFailed     = "Failed to publish reply for workflow %s: %v"
	logFmtCompleted       = "Synthesis completed for workflow %s: fallback=%t url=%s"
)

// SynthesisRequestedEvent asks the worker for one lip-sync video.
type SynthesisRequestedEvent struct {
	Header   events.EventHeader `json:"header"`
	AudioURL string             `json:"mp3URL"`
	ImageURL string             `json:"imageURL"`
}

// ReplyError describes a failed request.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SynthesisCompletedEvent is the reply to a SynthesisRequestedEvent.
type SynthesisCompletedEvent struct {
	Header   events.EventHeader `json:"header"`
	SyncURL  string             `json:"sync_url,omitempty"`
	URLs     []string           `json:"urls,omitempty"`
	Fallback bool               `json:"fallback"`
	Error    *ReplyError        `json:"error,omitempty"`
}

// NatsWorker listens for synthesis requests on a NATS subject and replies to each.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	synthesizer    core.Synthesizer
	timeout        time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. A zero timeout
// means DefaultHandleTimeout.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	synthesizer core.Synthesizer,
	timeout time.Duration,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if synthesizer == nil {
		return nil, ErrSynthesizerNil
	}

	if timeout <= 0 {
		timeout = DefaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		synthesizer:    synthesizer,
		timeout:        timeout,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages. It returns after
// ctx is done and the subscription has drained.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, QueueGroup, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.timeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error(logFmtParseFailed, err)
		w.reply(msg, &SynthesisCompletedEvent{
			Header: replyHeader(events.EventHeader{}),
			Error:  &ReplyError{Code: core.CodeInvalidRequest, Message: err.Error()},
		})

		return
	}

	resp, err := w.synthesizer.Synthesize(ctx, core.SynthesisRequest{
		AudioURL: event.AudioURL,
		ImageURL: event.ImageURL,
	})
	if err != nil {
		w.log.Error(logFmtSynthesisFailed, event.Header.WorkflowID, err)
		w.reply(msg, &SynthesisCompletedEvent{
			Header: replyHeader(event.Header),
			Error:  &ReplyError{Code: core.ErrorCode(err), Message: err.Error()},
		})

		return
	}

	w.log.Info(logFmtCompleted, event.Header.WorkflowID, resp.Fallback, resp.SyncURL)
	w.reply(msg, &SynthesisCompletedEvent{
		Header:   replyHeader(event.Header),
		SyncURL:  resp.SyncURL,
		URLs:     resp.URLs,
		Fallback: resp.Fallback,
	})
}

// reply marshals and responds with the completed event. Requests published
// without a reply subject get none.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *SynthesisCompletedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err == nil {
		err = msg.Respond(replyData)
	}

	if err != nil {
		w.log.Error(logFmtReplyFailed, replyEvent.Header.WorkflowID, err)
	}
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*SynthesisRequestedEvent, error) {
	var event SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal event: %w", core.ErrInvalidRequest, err)
	}

	return &event, nil
}

// replyHeader keeps the workflow and tenant of the request under a new event id.
func replyHeader(request events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: request.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}
