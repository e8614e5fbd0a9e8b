// Package inbox enqueues subtitle files dropped into a watched directory on a
// cron schedule.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/jobs"
	"github.com/MimeLyc/subflow/internal/service"
	"github.com/MimeLyc/subflow/pkg/file"
	"github.com/MimeLyc/subflow/pkg/icron"
	"github.com/MimeLyc/subflow/pkg/log"
)

const (
	SourceInbox     = "inbox"
	lockFileName    = ".subflow-inbox.lock"
	defaultLookback = 7 * 24 * time.Hour
)

var subtitleExts = []string{".srt", ".ass", ".ssa", ".vtt"}

// Enqueuer is the part of jobs.Queue the sweeper needs
type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.TranslationJob, bool)
}

type Sweeper struct {
	dir         string
	cronExpr    string
	target      language.Tag
	outputStyle string
	queue       Enqueuer
	lookback    time.Duration
	now         func() time.Time

	group singleflight.Group
	cron  *cron.Cron

	mu        sync.Mutex
	lastSweep time.Time
}

type Option func(*Sweeper)

// WithLookback sets the minimum window the first sweep scans. Older cron
// activations extend it.
func WithLookback(d time.Duration) Option {
	return func(s *Sweeper) {
		s.lookback = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(dir, cronExpr string, target language.Tag, outputStyle string, queue Enqueuer, opts ...Option) (*Sweeper, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox dir is required")
	}
	if err := icron.Validate(cronExpr); err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	s := &Sweeper{
		dir:         dir,
		cronExpr:    cronExpr,
		target:      target,
		outputStyle: outputStyle,
		queue:       queue,
		lookback:    defaultLookback,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start schedules sweeps until ctx is done
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cronExpr, func() {
		if _, err := s.Sweep(ctx); err != nil {
			log.Error("Inbox sweep of %s failed: %v", s.dir, err)
		}
	}); err != nil {
		return fmt.Errorf("schedule inbox sweep: %w", err)
	}
	s.cron.Start()

	if info, err := icron.GetTriggerInfo(s.cronExpr, s.now()); err == nil {
		log.Info("Inbox %s: next sweep in %s", s.dir, info.TimeUntilNext.Round(time.Second))
	}

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}

// Sweep enqueues new subtitle files and returns how many jobs were created.
// Overlapping calls share one sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	lock := flock.New(filepath.Join(s.dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("lock inbox: %w", err)
	}
	if !locked {
		log.Info("Inbox %s is being swept by another process", s.dir)
		return 0, nil
	}
	defer func() {
		_ = lock.Unlock()
	}()

	started := s.now()
	since, err := s.since(started)
	if err != nil {
		return 0, err
	}

	candidates, err := file.FindRecentAfter(s.dir, since, subtitleExts...)
	if err != nil {
		return 0, fmt.Errorf("scan inbox: %w", err)
	}

	created := 0
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if !s.needsTranslation(path) {
			continue
		}
		payload := jobs.JobPayload{
			SubtitleFile:   path,
			TargetLanguage: s.target.String(),
		}
		if _, ok := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    SourceInbox,
			DedupeKey: payload.DedupeKey(),
			Payload:   payload,
		}); ok {
			created++
		}
	}

	s.mu.Lock()
	s.lastSweep = started
	s.mu.Unlock()

	log.Info("Inbox %s: %d candidates since %s, %d jobs enqueued", s.dir, len(candidates), since.Format(time.RFC3339), created)
	return created, nil
}

// since returns the previous sweep time. The first sweep covers at least the
// lookback window, extended back to the last cron activation when that is older.
func (s *Sweeper) since(now time.Time) (time.Time, error) {
	s.mu.Lock()
	last := s.lastSweep
	s.mu.Unlock()
	if !last.IsZero() {
		return last, nil
	}

	info, err := icron.GetTriggerInfo(s.cronExpr, now)
	if err != nil {
		return time.Time{}, err
	}
	floor := now.Add(-s.lookback)
	if info.Last.IsZero() || info.Last.After(floor) {
		return floor, nil
	}
	return info.Last, nil
}

// needsTranslation skips our own outputs and files already translated
func (s *Sweeper) needsTranslation(path string) bool {
	stem := file.Stem(path)
	if strings.HasSuffix(stem, ".translated") || strings.HasSuffix(stem, "_"+s.target.String()) {
		return false
	}
	_, err := os.Stat(service.OutputPath(path, s.target, s.outputStyle))
	return os.IsNotExist(err)
}
