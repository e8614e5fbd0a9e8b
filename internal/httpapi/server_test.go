package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/persistence"
)

type enqueueResponse struct {
	Created bool                `json:"created"`
	Job     jobs.TranslationJob `json:"job"`
}

func postJob(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateJob_WithPayload(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue, WithTargetLanguage(language.French))

	rec := postJob(t, srv, `{"subtitle_path":"/media/ep1.srt","primary_engine":"gpt","fallback_engine":"gemini","batch_size":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	assert.Equal(t, "manual", resp.Job.Source)
	assert.Equal(t, "/media/ep1.srt|fr", resp.Job.DedupeKey)
	assert.Equal(t, jobs.JobPayload{
		SubtitleFile:   "/media/ep1.srt",
		TargetLanguage: "fr",
		PrimaryEngine:  "completion",
		FallbackEngine: "generative",
		BatchSize:      10,
	}, resp.Job.Payload)
	assert.Equal(t, jobs.StatusPending, resp.Job.Status)

	rec = postJob(t, srv, `{"subtitle_path":"/media/ep1.srt","target_language":"fr"}`)
	require.Equal(t, http.StatusOK, rec.Code, "same file and language is deduplicated")
	var again enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.False(t, again.Created)
	assert.Equal(t, resp.Job.ID, again.Job.ID)
}

func TestServer_CreateJob_Validation(t *testing.T) {
	srv := NewServer(jobs.NewQueue(1, nil))

	tests := map[string]string{
		"invalid json":       `{`,
		"missing path":       `{"target_language":"fr"}`,
		"unsupported format": `{"subtitle_path":"/media/notes.txt"}`,
		"bad language":       `{"subtitle_path":"/media/ep1.srt","target_language":"not a tag"}`,
		"unknown engine":     `{"subtitle_path":"/media/ep1.srt","primary_engine":"babelfish"}`,
		"same engines":       `{"subtitle_path":"/media/ep1.srt","primary_engine":"ollama","fallback_engine":"ollama"}`,
		"negative batch":     `{"subtitle_path":"/media/ep1.srt","batch_size":-1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := postJob(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestServer_ListJobs_FiltersByStatus(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue)

	require.Equal(t, http.StatusCreated, postJob(t, srv, `{"subtitle_path":"/a.srt"}`).Code)
	require.Equal(t, http.StatusCreated, postJob(t, srv, `{"subtitle_path":"/b.srt"}`).Code)

	list := queue.List()
	_, err := queue.Cancel(list[0].ID)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []jobs.TranslationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?status=cancelled", nil))
	var cancelled []jobs.TranslationJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	require.Len(t, cancelled, 1)
	assert.Equal(t, list[0].ID, cancelled[0].ID)
}

func TestServer_CancelJob(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(queue)
	job, _ := queue.Enqueue(jobs.EnqueueRequest{Payload: jobs.JobPayload{SubtitleFile: "/a.srt", TargetLanguage: "fr"}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	got, _ := queue.Get(job.ID)
	assert.Equal(t, jobs.StatusCancelled, got.Status)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_CancelFinishedJobConflicts(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	queue.Start(func(context.Context, *jobs.TranslationJob, jobs.ProgressFunc) (jobs.Result, error) {
		return jobs.Result{}, nil
	})
	defer queue.Stop()
	srv := NewServer(queue)

	job, _ := queue.Enqueue(jobs.EnqueueRequest{Payload: jobs.JobPayload{SubtitleFile: "/a.srt"}})
	require.Eventually(t, func() bool {
		got, _ := queue.Get(job.ID)
		return got.Status == jobs.StatusSuccess
	}, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_GetJobDetail_ReportsCheckpoints(t *testing.T) {
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "subflow.db"))
	require.NoError(t, err)
	defer store.Close()

	queue := jobs.NewQueue(1, store)
	srv := NewServer(queue, WithJobDataStore(store))

	job, _ := queue.Enqueue(jobs.EnqueueRequest{Payload: jobs.JobPayload{SubtitleFile: "/a.srt", TargetLanguage: "fr"}})
	require.NoError(t, store.SaveBatchCheckpoint(context.Background(), job.ID, 0, 2, []string{"Un", "Deux"}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail jobDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, job.ID, detail.Job.ID)
	assert.Equal(t, 1, detail.Checkpoints)
	assert.Empty(t, detail.Preview)
	assert.Equal(t, defaultJobPreviewLimit, detail.PreviewLimit)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetJobDetail_PreviewsFinishedJob(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "ep1.srt")
	output := filepath.Join(dir, "ep1_fr.srt")
	require.NoError(t, os.WriteFile(source, []byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:03,000 --> 00:00:04,000\nBye\n"), 0644))

	queue := jobs.NewQueue(1, nil)
	queue.Start(func(_ context.Context, job *jobs.TranslationJob, report jobs.ProgressFunc) (jobs.Result, error) {
		report(jobs.Progress{Stage: "TRANSLATING", Done: 1, Total: 1})
		err := os.WriteFile(output, []byte("1\n00:00:01,000 --> 00:00:02,000\nBonjour\n\n2\n00:00:03,000 --> 00:00:04,000\nAu revoir\n"), 0644)
		return jobs.Result{OutputFile: output}, err
	})
	defer queue.Stop()
	srv := NewServer(queue)

	job, _ := queue.Enqueue(jobs.EnqueueRequest{Payload: jobs.JobPayload{SubtitleFile: source, TargetLanguage: "fr"}})
	require.Eventually(t, func() bool {
		got, _ := queue.Get(job.ID)
		return got.Status == jobs.StatusSuccess
	}, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"?offset=1&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail jobDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.InDelta(t, 100.0, detail.Progress.Percent, 0.001)
	require.Len(t, detail.Preview, 1)
	assert.Equal(t, jobPreviewLine{SegmentID: 2, OriginalText: "Bye", TranslatedText: "Au revoir"}, detail.Preview[0])
}

func TestServer_JobStream(t *testing.T) {
	queue := jobs.NewQueue(1, nil)
	queue.Enqueue(jobs.EnqueueRequest{Payload: jobs.JobPayload{SubtitleFile: "/a.srt", TargetLanguage: "fr"}})
	srv := NewServer(queue, WithStreamInterval(10*time.Millisecond))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: jobs\n", event)

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data: "))

	var listed []jobs.TranslationJob
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(data), "data: ")), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "/a.srt", listed[0].Payload.SubtitleFile)
}
