package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	release := make(chan struct{})
	q.Start(func(_ context.Context, job *TranslationJob, report ProgressFunc) (Result, error) {
		report(Progress{Stage: "translating", Done: 1, Total: 3})
		<-release
		return Result{OutputFile: "/out/ep1_fr.srt", Warnings: []string{"batch 0: expected 3 translated lines, got 2"}}, nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "k1",
		Payload:   JobPayload{SubtitleFile: "/in/ep1.srt", TargetLanguage: "fr"},
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusRunning && got.Progress.Done == 1
	}, time.Second, 10*time.Millisecond)

	close(release)

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, "/out/ep1_fr.srt", got.OutputFile)
	assert.Len(t, got.Warnings, 1)
	assert.Equal(t, Progress{Stage: "translating", Done: 1, Total: 3}, got.Progress)
}

func TestQueue_RunsJobsConcurrently(t *testing.T) {
	q := NewQueue(2, nil)
	gate := make(chan struct{})
	running := make(chan string, 2)
	q.Start(func(ctx context.Context, job *TranslationJob, _ ProgressFunc) (Result, error) {
		running <- job.ID
		<-gate
		return Result{}, nil
	})
	defer q.Stop()

	q.Enqueue(EnqueueRequest{DedupeKey: "x"})
	q.Enqueue(EnqueueRequest{DedupeKey: "y"})

	for range 2 {
		select {
		case <-running:
		case <-time.After(time.Second):
			t.Fatal("jobs did not run concurrently")
		}
	}
	close(gate)
}
