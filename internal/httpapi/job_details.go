package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/subtitle"
)

const (
	defaultJobPreviewLimit = 80
	maxJobPreviewLimit     = 500
)

type jobDetailResponse struct {
	Job           *jobs.TranslationJob `json:"job"`
	Progress      jobProgressResponse  `json:"progress"`
	Checkpoints   int                  `json:"checkpoints"`
	Preview       []jobPreviewLine     `json:"preview"`
	PreviewOffset int                  `json:"preview_offset"`
	PreviewLimit  int                  `json:"preview_limit"`
}

type jobProgressResponse struct {
	Stage   string  `json:"stage"`
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

type jobPreviewLine struct {
	SegmentID      int    `json:"segment_id"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleJobDetail(w, r, jobID)
	case http.MethodDelete:
		s.handleCancelJob(w, jobID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func parseJobRoute(path string) (string, bool) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/api/jobs/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", false
	}
	jobID, err := url.PathUnescape(trimmed)
	if err != nil || strings.TrimSpace(jobID) == "" {
		return "", false
	}
	return jobID, true
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request, jobID string) {
	offset := parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)
	limit := parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultJobPreviewLimit)
	if limit <= 0 {
		limit = defaultJobPreviewLimit
	}
	if limit > maxJobPreviewLimit {
		limit = maxJobPreviewLimit
	}

	detail, err := s.buildJobDetail(r.Context(), jobID, offset, limit)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, jobID string) {
	job, err := s.queue.Cancel(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.Status.Terminal() && job.Status != jobs.StatusCancelled {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) buildJobDetail(ctx context.Context, jobID string, offset int, limit int) (jobDetailResponse, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return jobDetailResponse{}, jobs.ErrJobNotFound
	}

	detail := jobDetailResponse{
		Job:           job,
		Progress:      computeJobProgress(job.Progress),
		Preview:       []jobPreviewLine{},
		PreviewOffset: offset,
		PreviewLimit:  limit,
	}

	if s.jobData != nil {
		checkpoints, err := s.jobData.LoadBatchCheckpoints(ctx, jobID)
		if err != nil {
			return jobDetailResponse{}, err
		}
		detail.Checkpoints = len(checkpoints)
	}

	if job.Status == jobs.StatusSuccess && job.OutputFile != "" {
		preview, err := buildPreviewLines(job.Payload.SubtitleFile, job.OutputFile, offset, limit)
		if err != nil {
			return jobDetailResponse{}, err
		}
		detail.Preview = preview
	}
	return detail, nil
}

func computeJobProgress(p jobs.Progress) jobProgressResponse {
	ret := jobProgressResponse{Stage: p.Stage, Done: p.Done, Total: p.Total}
	if p.Total > 0 {
		ret.Percent = (float64(p.Done) / float64(p.Total)) * 100
	}
	return ret
}

// buildPreviewLines pairs source and translated segments by id. Both files
// share their structure, so segment ids line up.
func buildPreviewLines(sourcePath, outputPath string, offset int, limit int) ([]jobPreviewLine, error) {
	source, err := subtitle.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}
	output, err := subtitle.ReadFile(outputPath)
	if err != nil {
		return nil, err
	}

	translated := make(map[int]string)
	for _, seg := range output.Segments() {
		translated[seg.ID] = seg.Text
	}

	segments := source.Segments()
	if offset >= len(segments) {
		return []jobPreviewLine{}, nil
	}
	end := min(offset+limit, len(segments))

	ret := make([]jobPreviewLine, 0, end-offset)
	for _, seg := range segments[offset:end] {
		ret = append(ret, jobPreviewLine{
			SegmentID:      seg.ID,
			OriginalText:   seg.Text,
			TranslatedText: translated[seg.ID],
		})
	}
	return ret, nil
}
