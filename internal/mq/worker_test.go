package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/reassembler"
	"github.com/MimeLyc/subflow/internal/service"
	"github.com/MimeLyc/subflow/internal/translator"
)

type fakeAcknowledger struct {
	acked    int
	nacked   int
	requeued int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakePublisher struct {
	mu       sync.Mutex
	queue    string
	messages [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, queue string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.queue = queue
	p.messages = append(p.messages, body)
	return nil
}

func (p *fakePublisher) last(t *testing.T) TranslationResult {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.messages)
	var res TranslationResult
	require.NoError(t, json.Unmarshal(p.messages[len(p.messages)-1], &res))
	return res
}

type fakeRunner struct {
	got    []service.Request
	result *service.Result
	err    error
}

func (r *fakeRunner) Run(ctx context.Context, req service.Request) (*service.Result, error) {
	r.got = append(r.got, req)
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func testDefaults() service.JobDefaults {
	return service.JobDefaults{
		Target:    language.Chinese,
		Primary:   engine.KindGenerative,
		Fallback:  engine.KindCompletion,
		BatchSize: 20,
	}
}

func delivery(t *testing.T, ack *fakeAcknowledger, body any) amqp.Delivery {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: raw}
}

func TestWorker_Handle_Success(t *testing.T) {
	runner := &fakeRunner{result: &service.Result{
		OutputPath: "/media/ep1_fr.srt",
		Segments:   12,
		Batches:    1,
		Warnings:   []reassembler.BatchMismatchWarning{{BatchIndex: 0, Expected: 3, Got: 2}},
	}}
	pub := &fakePublisher{}
	ack := &fakeAcknowledger{}
	w := NewWorker(runner, pub, "results", testDefaults())

	w.Handle(context.Background(), delivery(t, ack, TranslationCommand{
		RequestID:      "req-1",
		SubtitlePath:   "/media/ep1.srt",
		TargetLanguage: "fr",
		PrimaryEngine:  "ollama",
	}))

	require.Len(t, runner.got, 1)
	req := runner.got[0]
	assert.Equal(t, "req-1", req.JobID)
	assert.Equal(t, "/media/ep1.srt", req.InputPath)
	assert.Equal(t, language.French, req.TargetLanguage)
	assert.Equal(t, engine.KindOllama, req.Primary)
	assert.Equal(t, engine.KindCompletion, req.Fallback)
	assert.Equal(t, 20, req.BatchSize)

	assert.Equal(t, "results", pub.queue)
	res := pub.last(t)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, "fr", res.TargetLanguage)
	assert.Equal(t, "/media/ep1_fr.srt", res.OutputPath)
	assert.Equal(t, 12, res.Segments)
	assert.Len(t, res.Warnings, 1)
	assert.Empty(t, res.ErrorMessage)

	assert.Equal(t, 1, ack.acked)
	assert.Zero(t, ack.nacked)
}

func TestWorker_Handle_StableIDWithoutRequestID(t *testing.T) {
	runner := &fakeRunner{result: &service.Result{}}
	w := NewWorker(runner, &fakePublisher{}, "results", testDefaults())

	w.Handle(context.Background(), delivery(t, &fakeAcknowledger{}, TranslationCommand{SubtitlePath: "/media/ep1.srt"}))

	require.Len(t, runner.got, 1)
	assert.Equal(t, service.StableJobID("/media/ep1.srt", language.Chinese), runner.got[0].JobID)
}

func TestWorker_Handle_PipelineFailurePublishesError(t *testing.T) {
	runner := &fakeRunner{err: &translator.TranslationFailed{BatchIndex: 2}}
	pub := &fakePublisher{}
	ack := &fakeAcknowledger{}
	w := NewWorker(runner, pub, "results", testDefaults())

	w.Handle(context.Background(), delivery(t, ack, TranslationCommand{SubtitlePath: "/media/ep1.srt"}))

	res := pub.last(t)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "TranslationFailed", res.ErrorType)
	assert.NotEmpty(t, res.ErrorMessage)
	assert.Equal(t, service.Advice(runner.err), res.Advice)
	assert.Equal(t, 1, ack.acked)
}

func TestWorker_Handle_InvalidCommands(t *testing.T) {
	tests := []struct {
		name    string
		cmd     TranslationCommand
		errType string
	}{
		{name: "missing path", cmd: TranslationCommand{}, errType: "Validation"},
		{name: "bad language", cmd: TranslationCommand{SubtitlePath: "a.srt", TargetLanguage: "not a language!"}, errType: "Validation"},
		{name: "bad engine", cmd: TranslationCommand{SubtitlePath: "a.srt", PrimaryEngine: "telepathy"}, errType: "Validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			pub := &fakePublisher{}
			ack := &fakeAcknowledger{}
			w := NewWorker(runner, pub, "results", testDefaults())

			w.Handle(context.Background(), delivery(t, ack, tt.cmd))

			assert.Empty(t, runner.got)
			res := pub.last(t)
			assert.Equal(t, StatusError, res.Status)
			assert.Equal(t, tt.errType, res.ErrorType)
			assert.Equal(t, 1, ack.acked)
		})
	}
}

func TestWorker_Handle_MalformedJSONIsDropped(t *testing.T) {
	runner := &fakeRunner{}
	pub := &fakePublisher{}
	ack := &fakeAcknowledger{}
	w := NewWorker(runner, pub, "results", testDefaults())

	w.Handle(context.Background(), delivery(t, ack, "{not json"))

	assert.Empty(t, runner.got)
	assert.Empty(t, pub.messages)
	assert.Equal(t, 1, ack.nacked)
	assert.Zero(t, ack.requeued)
}

func TestWorker_Handle_PublishFailureRequeues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	ack := &fakeAcknowledger{}
	w := NewWorker(&fakeRunner{result: &service.Result{}}, pub, "results", testDefaults())

	w.Handle(context.Background(), delivery(t, ack, TranslationCommand{SubtitlePath: "a.srt"}))

	assert.Zero(t, ack.acked)
	assert.Equal(t, 1, ack.requeued)
}

func TestWorker_Handle_ShutdownRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := &fakePublisher{}
	ack := &fakeAcknowledger{}
	w := NewWorker(&fakeRunner{err: context.Canceled}, pub, "results", testDefaults())

	w.Handle(ctx, delivery(t, ack, TranslationCommand{SubtitlePath: "a.srt"}))

	assert.Empty(t, pub.messages)
	assert.Equal(t, 1, ack.requeued)
}

func TestWorker_Run(t *testing.T) {
	runner := &fakeRunner{result: &service.Result{}}
	pub := &fakePublisher{}
	w := NewWorker(runner, pub, "results", testDefaults())

	deliveries := make(chan amqp.Delivery, 2)
	ack := &fakeAcknowledger{}
	deliveries <- delivery(t, ack, TranslationCommand{SubtitlePath: "a.srt"})
	deliveries <- delivery(t, ack, TranslationCommand{SubtitlePath: "b.srt"})
	close(deliveries)

	err := w.Run(context.Background(), deliveries)
	require.Error(t, err)
	assert.Len(t, runner.got, 2)
	assert.Equal(t, 2, ack.acked)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = w.Run(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
