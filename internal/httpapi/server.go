package httpapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/persistence"
)

// jobDataStore exposes the checkpoints of queued jobs
type jobDataStore interface {
	LoadBatchCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
}

type Server struct {
	queue          *jobs.Queue
	jobData        jobDataStore
	targetLanguage language.Tag
	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithJobDataStore(store jobDataStore) Option {
	return func(s *Server) {
		s.jobData = store
	}
}

// WithTargetLanguage sets the language used when a request names none
func WithTargetLanguage(tag language.Tag) Option {
	return func(s *Server) {
		s.targetLanguage = tag
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		queue:          queue,
		targetLanguage: language.Chinese,
		streamInterval: time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobRoutes)
}
