package jobs

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job will not run again
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload is everything a worker needs to translate one file
type JobPayload struct {
	SubtitleFile   string `json:"subtitle_file"`
	TargetLanguage string `json:"target_language"`
	PrimaryEngine  string `json:"primary_engine,omitempty"`
	FallbackEngine string `json:"fallback_engine,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
	OutputFile     string `json:"output_file,omitempty"`
}

// DedupeKey identifies the same file translated into the same language
func (p JobPayload) DedupeKey() string {
	return p.SubtitleFile + "|" + p.TargetLanguage
}

// Progress is reported by executors while a job runs
type Progress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

type ProgressFunc func(Progress)

// Result is what a successful executor hands back to the queue
type Result struct {
	OutputFile string
	Warnings   []string
}

type TranslationJob struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	DedupeKey  string     `json:"dedupe_key"`
	Payload    JobPayload `json:"payload"`
	Status     Status     `json:"status"`
	Progress   Progress   `json:"progress"`
	OutputFile string     `json:"output_file,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
