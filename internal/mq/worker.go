package mq

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/service"
	"github.com/MimeLyc/subflow/pkg/log"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Runner executes one pipeline request
type Runner interface {
	Run(ctx context.Context, req service.Request) (*service.Result, error)
}

// TranslationCommand is the body of a request message
type TranslationCommand struct {
	RequestID      string `json:"request_id,omitempty"`
	SubtitlePath   string `json:"subtitle_path"`
	TargetLanguage string `json:"target_language,omitempty"`
	PrimaryEngine  string `json:"primary_engine,omitempty"`
	FallbackEngine string `json:"fallback_engine,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
	OutputPath     string `json:"output_path,omitempty"`
}

// TranslationResult is published once per handled command
type TranslationResult struct {
	RequestID      string   `json:"request_id,omitempty"`
	Status         string   `json:"status"`
	SubtitlePath   string   `json:"subtitle_path"`
	TargetLanguage string   `json:"target_language,omitempty"`
	OutputPath     string   `json:"output_path,omitempty"`
	Segments       int      `json:"segments,omitempty"`
	Batches        int      `json:"batches,omitempty"`
	Fallbacks      int      `json:"fallbacks,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	ErrorType      string   `json:"error_type,omitempty"`
	ErrorMessage   string   `json:"error,omitempty"`
	Advice         string   `json:"advice,omitempty"`
}

// Worker turns request messages into pipeline runs and result messages
type Worker struct {
	runner      Runner
	publisher   Publisher
	resultQueue string
	defaults    service.JobDefaults
}

func NewWorker(runner Runner, publisher Publisher, resultQueue string, defaults service.JobDefaults) *Worker {
	return &Worker{
		runner:      runner,
		publisher:   publisher,
		resultQueue: resultQueue,
		defaults:    defaults,
	}
}

// Run handles deliveries one at a time until ctx ends or the channel closes
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	log.Info("worker listening, results go to %s", w.resultQueue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle processes one delivery. Malformed bodies are dropped, commands
// interrupted by shutdown are requeued, and everything else is acknowledged
// after its result is published.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	log.Info("received translation command: %d bytes", len(d.Body))

	var cmd TranslationCommand
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		log.Error("invalid command json: %v", err)
		settle(d.Nack(false, false))
		return
	}

	result, err := w.process(ctx, cmd)
	if err != nil && ctx.Err() != nil {
		log.Warn("command %s interrupted, requeueing", cmd.SubtitlePath)
		settle(d.Nack(false, true))
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		log.Error("encode result: %v", err)
		settle(d.Nack(false, false))
		return
	}

	if err := w.publisher.Publish(ctx, w.resultQueue, body); err != nil {
		log.Error("publish result for %s: %v", cmd.SubtitlePath, err)
		settle(d.Nack(false, true))
		return
	}

	log.Info("published %s result for %s", result.Status, cmd.SubtitlePath)
	settle(d.Ack(false))
}

func (w *Worker) process(ctx context.Context, cmd TranslationCommand) (TranslationResult, error) {
	result := TranslationResult{
		RequestID:      cmd.RequestID,
		SubtitlePath:   cmd.SubtitlePath,
		TargetLanguage: cmd.TargetLanguage,
	}

	if cmd.SubtitlePath == "" {
		return failed(result, service.NewError(service.ErrValidation, "subtitle_path is required")), nil
	}

	payload := jobs.JobPayload{
		SubtitleFile:   cmd.SubtitlePath,
		TargetLanguage: cmd.TargetLanguage,
		PrimaryEngine:  cmd.PrimaryEngine,
		FallbackEngine: cmd.FallbackEngine,
		BatchSize:      cmd.BatchSize,
		OutputFile:     cmd.OutputPath,
	}

	req, err := service.RequestFromPayload(cmd.RequestID, payload, w.defaults)
	if err != nil {
		return failed(result, err), nil
	}
	if req.JobID == "" {
		// redelivered commands without an id still resume their checkpoints
		req.JobID = service.StableJobID(req.InputPath, req.TargetLanguage)
	}
	result.TargetLanguage = req.TargetLanguage.String()

	res, err := w.runner.Run(ctx, req)
	if err != nil {
		return failed(result, err), err
	}

	result.Status = StatusSuccess
	result.OutputPath = res.OutputPath
	result.Segments = res.Segments
	result.Batches = res.Batches
	result.Fallbacks = res.Fallbacks
	result.Warnings = res.WarningStrings()
	return result, nil
}

func failed(result TranslationResult, err error) TranslationResult {
	result.Status = StatusError
	result.ErrorType = service.Classify(err).String()
	result.ErrorMessage = err.Error()
	result.Advice = service.Advice(err)
	return result
}

func settle(err error) {
	if err != nil {
		log.Error("settle delivery: %v", err)
	}
}
