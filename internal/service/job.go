package service

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/translator"
)

// State is a step of the translation job lifecycle
type State string

const (
	StatePending      State = "PENDING"
	StateParsing      State = "PARSING"
	StateBatching     State = "BATCHING"
	StateTranslating  State = "TRANSLATING"
	StateReassembling State = "REASSEMBLING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// next lists the forward transitions; FAILED is reachable from every non-terminal state
var next = map[State]State{
	StatePending:      StateParsing,
	StateParsing:      StateBatching,
	StateBatching:     StateTranslating,
	StateTranslating:  StateReassembling,
	StateReassembling: StateDone,
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is one recorded state change
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Progress is reported on every state change and after each translated batch
type Progress struct {
	State  State
	Batch  int
	Total  int
	Engine engine.Kind
	Source translator.Source
}

// Job is one TranslationJob. It owns its request and shares nothing with other jobs.
type Job struct {
	ID      string
	Request Request

	mu         sync.RWMutex
	state      State
	history    []Transition
	err        error
	onProgress func(Progress)
	now        func() time.Time
}

// NewJob creates a PENDING job. Request.JobID is used as id when set.
func NewJob(req Request) *Job {
	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}
	return &Job{
		ID:      id,
		Request: req,
		state:   StatePending,
		now:     time.Now,
	}
}

// OnProgress installs fn as progress callback; call before the job runs
func (j *Job) OnProgress(fn func(Progress)) *Job {
	j.mu.Lock()
	j.onProgress = fn
	j.mu.Unlock()
	return j
}

func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// History returns the transitions taken so far, oldest first
func (j *Job) History() []Transition {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.history)
}

// Err returns the typed error of a FAILED job
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// advance moves the job one step forward. Skipping or repeating a step is an error.
func (j *Job) advance(to State) error {
	j.mu.Lock()
	from := j.state
	if next[from] != to {
		j.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, to)
	}
	j.record(from, to)
	fn := j.onProgress
	j.mu.Unlock()

	if fn != nil {
		fn(Progress{State: to})
	}
	return nil
}

// fail moves a running job to FAILED with err and returns err
func (j *Job) fail(err *JobError) error {
	j.mu.Lock()
	from := j.state
	if from.Terminal() {
		j.mu.Unlock()
		return err
	}
	err.WithContext("state", from)
	j.err = err
	j.record(from, StateFailed)
	fn := j.onProgress
	j.mu.Unlock()

	if fn != nil {
		fn(Progress{State: StateFailed})
	}
	return err
}

func (j *Job) record(from, to State) {
	j.state = to
	j.history = append(j.history, Transition{From: from, To: to, At: j.now()})
}

func (j *Job) batchDone(p translator.Progress) {
	j.mu.RLock()
	fn := j.onProgress
	state := j.state
	j.mu.RUnlock()

	if fn != nil {
		fn(Progress{State: state, Batch: p.Batch, Total: p.Total, Engine: p.Engine, Source: p.Source})
	}
}
