// Package worker_test tests the NATS worker for the lipsync service.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/testutil"
	"github.com/book-expert/lipsync-service/internal/worker"
)

const testSubject = "lipsync.test"

var errMockSynthesis = errors.New("mock synthesis error")

// mockSynthesizer is a mock implementation of the core.Synthesizer interface.
type mockSynthesizer struct {
	shouldFail bool
	err        error
	received   chan core.SynthesisRequest
}

func (m *mockSynthesizer) Synthesize(_ context.Context, req core.SynthesisRequest) (*core.SynthesisResponse, error) {
	m.received <- req

	if m.shouldFail {
		return nil, m.err
	}

	return &core.SynthesisResponse{
		SyncURL: "https://signed.test/syncs/a.mp4",
		URLs:    []string{"https://signed.test/syncs/a.mp4"},
	}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

// startWorker runs a worker until the test ends and asserts it shuts down cleanly.
func startWorker(t *testing.T, natsConnection *nats.Conn, synthesizer core.Synthesizer) {
	t.Helper()

	workerInstance, err := worker.NewNatsWorker(natsConnection, testSubject, synthesizer, time.Minute, testutil.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
	})
}

func request(t *testing.T, natsConnection *nats.Conn, payload []byte) worker.SynthesisCompletedEvent {
	t.Helper()

	var (
		replyMsg *nats.Msg
		err      error
	)

	// The worker subscribes asynchronously; retry until it has responders.
	require.Eventually(t, func() bool {
		replyMsg, err = natsConnection.Request(testSubject, payload, 2*time.Second)

		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "Request should receive a reply")

	var reply worker.SynthesisCompletedEvent
	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	return reply
}

func newEvent() *worker.SynthesisRequestedEvent {
	return &worker.SynthesisRequestedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "user-1",
			TenantID:   "tenant-1",
		},
		AudioURL: "https://cdn.example/a.mp3",
		ImageURL: "https://cdn.example/i.png",
	}
}

func TestNewNatsWorker_Validation(t *testing.T) {
	t.Parallel()

	log := testutil.NewLogger(t)

	_, err := worker.NewNatsWorker(nil, "", &mockSynthesizer{}, 0, log)
	require.ErrorIs(t, err, worker.ErrSubjectEmpty)

	_, err = worker.NewNatsWorker(nil, testSubject, nil, 0, log)
	require.ErrorIs(t, err, worker.ErrSynthesizerNil)
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	synth := &mockSynthesizer{received: make(chan core.SynthesisRequest, 8)}
	startWorker(t, natsConnection, synth)

	event := newEvent()
	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	reply := request(t, natsConnection, eventData)

	received := <-synth.received
	assert.Equal(t, core.SynthesisRequest{AudioURL: event.AudioURL, ImageURL: event.ImageURL}, received)

	assert.Nil(t, reply.Error)
	assert.Equal(t, "https://signed.test/syncs/a.mp4", reply.SyncURL)
	assert.Equal(t, []string{"https://signed.test/syncs/a.mp4"}, reply.URLs)
	assert.False(t, reply.Fallback)
	assert.Equal(t, event.Header.WorkflowID, reply.Header.WorkflowID)
	assert.Equal(t, event.Header.TenantID, reply.Header.TenantID)
	assert.NotEqual(t, event.Header.EventID, reply.Header.EventID)
}

func TestMessageHandler_SynthesisError(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	synth := &mockSynthesizer{
		received:   make(chan core.SynthesisRequest, 8),
		shouldFail: true,
		err:        errors.Join(core.ErrFetch, errMockSynthesis),
	}
	startWorker(t, natsConnection, synth)

	eventData, err := json.Marshal(newEvent())
	require.NoError(t, err)

	reply := request(t, natsConnection, eventData)
	require.NotNil(t, reply.Error)
	assert.Equal(t, core.CodeFetchFailed, reply.Error.Code)
	assert.Empty(t, reply.SyncURL)
}

func TestMessageHandler_MalformedPayload(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	synth := &mockSynthesizer{received: make(chan core.SynthesisRequest, 8)}
	startWorker(t, natsConnection, synth)

	reply := request(t, natsConnection, []byte("{not json"))
	require.NotNil(t, reply.Error)
	assert.Equal(t, core.CodeInvalidRequest, reply.Error.Code)
	assert.Empty(t, synth.received)
}

func TestMessageHandler_EndToEndFallback(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	media := testutil.NewMediaServer(t)
	pipeline := testutil.NewPipeline(t, testutil.StubFailsSilently, testutil.NewRecordingStore())
	startWorker(t, natsConnection, pipeline.Orchestrator)

	event := newEvent()
	event.AudioURL = media.AudioURL()
	event.ImageURL = media.ImageURL()

	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	reply := request(t, natsConnection, eventData)
	assert.Nil(t, reply.Error)
	assert.True(t, reply.Fallback)
	assert.Equal(t, testutil.FallbackURL, reply.SyncURL)
}
