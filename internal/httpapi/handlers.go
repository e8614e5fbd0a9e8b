package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/subtitle"
)

type enqueueJobRequest struct {
	Source         string `json:"source"`
	SubtitlePath   string `json:"subtitle_path"`
	TargetLanguage string `json:"target_language"`
	PrimaryEngine  string `json:"primary_engine"`
	FallbackEngine string `json:"fallback_engine"`
	BatchSize      int    `json:"batch_size"`
	OutputPath     string `json:"output_path"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, filterJobs(s.queue.List(), r.URL.Query().Get("status")))
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		payload, err := s.payloadFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Source == "" {
			req.Source = "manual"
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: payload.DedupeKey(),
			Payload:   payload,
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) payloadFromRequest(req enqueueJobRequest) (jobs.JobPayload, error) {
	if strings.TrimSpace(req.SubtitlePath) == "" {
		return jobs.JobPayload{}, errors.New("subtitle_path is required")
	}
	if _, err := subtitle.FormatFromPath(req.SubtitlePath); err != nil {
		return jobs.JobPayload{}, err
	}
	if req.BatchSize < 0 {
		return jobs.JobPayload{}, errors.New("batch_size must not be negative")
	}

	target := s.targetLanguage
	if req.TargetLanguage != "" {
		tag, err := language.Parse(strings.ReplaceAll(req.TargetLanguage, "_", "-"))
		if err != nil || tag == language.Und {
			return jobs.JobPayload{}, errors.New("invalid target_language")
		}
		target = tag
	}

	payload := jobs.JobPayload{
		SubtitleFile:   req.SubtitlePath,
		TargetLanguage: target.String(),
		BatchSize:      req.BatchSize,
		OutputFile:     req.OutputPath,
	}
	if req.PrimaryEngine != "" {
		kind, err := engine.ParseKind(req.PrimaryEngine)
		if err != nil {
			return jobs.JobPayload{}, err
		}
		payload.PrimaryEngine = kind.String()
	}
	if req.FallbackEngine != "" {
		kind, err := engine.ParseKind(req.FallbackEngine)
		if err != nil {
			return jobs.JobPayload{}, err
		}
		payload.FallbackEngine = kind.String()
	}
	if payload.PrimaryEngine != "" && payload.PrimaryEngine == payload.FallbackEngine {
		return jobs.JobPayload{}, errors.New("primary_engine and fallback_engine must differ")
	}
	return payload, nil
}

func filterJobs(list []*jobs.TranslationJob, status string) []*jobs.TranslationJob {
	if status == "" {
		return list
	}
	ret := make([]*jobs.TranslationJob, 0, len(list))
	for _, job := range list {
		if string(job.Status) == status {
			ret = append(ret, job)
		}
	}
	return ret
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
