// Package service runs translation jobs end to end: parse, batch, translate
// with fallback, reassemble and write.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/chunker"
	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/reassembler"
	"github.com/MimeLyc/subflow/internal/subtitle"
	"github.com/MimeLyc/subflow/internal/termmap"
	"github.com/MimeLyc/subflow/internal/translator"
	"github.com/MimeLyc/subflow/pkg/file"
	"github.com/MimeLyc/subflow/pkg/log"
)

const DefaultBatchSize = 20

// Request describes one translation job. Either InputPath or Data must be set;
// with Data, Name selects the format.
type Request struct {
	JobID          string
	InputPath      string
	Data           []byte
	Name           string
	TargetLanguage language.Tag
	Primary        engine.Kind
	Fallback       engine.Kind
	BatchSize      int
	OutputPath     string
}

func (r Request) sourceName() string {
	if r.Data != nil {
		return r.Name
	}
	return r.InputPath
}

// Result describes a finished job. Output holds the rendered document;
// OutputPath is empty when nothing was written.
type Result struct {
	JobID          string                             `json:"job_id"`
	OutputPath     string                             `json:"output_path,omitempty"`
	Output         []byte                             `json:"-"`
	Format         subtitle.Format                    `json:"format"`
	SourceLanguage language.Tag                       `json:"source_language"`
	Segments       int                                `json:"segments"`
	Batches        int                                `json:"batches"`
	Warnings       []reassembler.BatchMismatchWarning `json:"warnings,omitempty"`
	EngineCalls    int                                `json:"engine_calls"`
	Fallbacks      int                                `json:"fallbacks"`
	CacheHits      int                                `json:"cache_hits"`
	Resumed        int                                `json:"resumed"`
	Glossary       string                             `json:"glossary,omitempty"`
	Elapsed        time.Duration                      `json:"elapsed"`
}

// WarningStrings renders the warnings for job records
func (r *Result) WarningStrings() []string {
	ret := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		ret = append(ret, w.Error())
	}
	return ret
}

// EngineFactory builds the engine of one kind
type EngineFactory func(kind engine.Kind) (engine.Engine, error)

// Pipeline holds what jobs share: engine settings, the translation cache and the
// checkpoint backend. Each run builds its own engines and orchestrator.
type Pipeline struct {
	newEngine   EngineFactory
	pacing      time.Duration
	callTimeout time.Duration
	batchSize   int
	maxChars    int
	outputStyle string
	cache       translator.Cache
	checkpoints CheckpointBackend
	sleep       func(ctx context.Context, d time.Duration) error
}

type PipelineOption func(*Pipeline)

func WithEngineFactory(fn EngineFactory) PipelineOption {
	return func(p *Pipeline) {
		p.newEngine = fn
	}
}

func WithPacing(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.pacing = d
	}
}

func WithCallTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.callTimeout = d
	}
}

func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		p.batchSize = n
	}
}

func WithMaxChars(n int) PipelineOption {
	return func(p *Pipeline) {
		p.maxChars = n
	}
}

// WithOutputStyle selects the derived output name: config.OutputStyleLang or config.OutputStyleTranslated
func WithOutputStyle(style string) PipelineOption {
	return func(p *Pipeline) {
		p.outputStyle = style
	}
}

func WithCache(c translator.Cache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = c
	}
}

func WithCheckpoints(b CheckpointBackend) PipelineOption {
	return func(p *Pipeline) {
		p.checkpoints = b
	}
}

// WithSleep replaces the pacing sleep, mainly for tests
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PipelineOption {
	return func(p *Pipeline) {
		p.sleep = fn
	}
}

// NewPipeline builds engines from cfg unless WithEngineFactory overrides it
func NewPipeline(cfg engine.Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		newEngine: func(kind engine.Kind) (engine.Engine, error) {
			return engine.New(kind, cfg)
		},
		pacing:      translator.DefaultPacing,
		callTimeout: translator.DefaultCallTimeout,
		batchSize:   DefaultBatchSize,
		maxChars:    chunker.DefaultMaxChars,
		outputStyle: config.OutputStyleLang,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPipelineFromConfig applies the translate section of cfg
func NewPipelineFromConfig(cfg *config.Config, opts ...PipelineOption) *Pipeline {
	base := []PipelineOption{
		WithPacing(cfg.Translate.Pacing.Std()),
		WithCallTimeout(cfg.Translate.CallTimeout.Std()),
		WithBatchSize(cfg.Translate.BatchSize),
		WithMaxChars(cfg.Translate.MaxChars),
		WithOutputStyle(cfg.Translate.OutputStyle),
	}
	return NewPipeline(cfg.Engines.EngineConfig(), append(base, opts...)...)
}

// OutputPath derives where the translation of input is written
func OutputPath(input string, target language.Tag, style string) string {
	if style == config.OutputStyleTranslated {
		return file.InsertSuffix(input, ".translated")
	}
	return file.InsertSuffix(input, "_"+target.String())
}

// Run executes req as a fresh job
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	return p.Execute(ctx, NewJob(req))
}

// RunAll runs independent jobs concurrently, at most limit at a time.
// results[i] and errs[i] belong to reqs[i]; one failure does not stop the others.
func (p *Pipeline) RunAll(ctx context.Context, reqs []Request, limit int) ([]*Result, []error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i], errs[i] = p.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

// Execute drives job through its states. On failure the job ends FAILED and the
// returned error is the job's *JobError.
func (p *Pipeline) Execute(ctx context.Context, job *Job) (*Result, error) {
	started := time.Now()
	req := job.Request
	result := &Result{JobID: job.ID}

	if jerr := p.validate(&req); jerr != nil {
		return nil, job.fail(jerr)
	}

	primary, fallback, jerr := p.engines(req)
	if jerr != nil {
		return nil, job.fail(jerr)
	}

	// PARSING
	if err := job.advance(StateParsing); err != nil {
		return nil, err
	}
	doc, err := p.parse(req)
	if err != nil {
		errType := Classify(err)
		if errType == ErrUnknown {
			errType = ErrFileRead
		}
		return nil, job.fail(WrapError(err, errType, "parse subtitle"))
	}
	segments := doc.Segments()
	source := subtitle.DetectLanguage(segments)
	result.Format = doc.Format
	result.Segments = len(segments)
	result.SourceLanguage = source
	log.Info("Job %s: %s, %d segments, %s -> %s", job.ID, req.sourceName(), len(segments), source, req.TargetLanguage)

	// BATCHING
	if err := job.advance(StateBatching); err != nil {
		return nil, err
	}
	batches, err := chunker.Chunk(segments, req.BatchSize, p.maxChars)
	if err != nil {
		return nil, job.fail(NewErrorWithCause(ErrValidation, "chunk segments", err))
	}
	result.Batches = len(batches)

	// TRANSLATING
	if err := job.advance(StateTranslating); err != nil {
		return nil, err
	}
	checkpoints := p.openCheckpoints(ctx, job.ID)
	opts := []translator.Option{
		translator.WithPacing(p.pacing),
		translator.WithCallTimeout(p.callTimeout),
		translator.WithProgress(job.batchDone),
	}
	if p.cache != nil {
		opts = append(opts, translator.WithCache(p.cache))
	}
	if checkpoints != nil {
		opts = append(opts, translator.WithCheckpoints(checkpoints))
	}
	if p.sleep != nil {
		opts = append(opts, translator.WithSleep(p.sleep))
	}
	if path, terms := loadGlossary(req, source); len(terms) > 0 {
		log.Info("Job %s: using %d glossary terms from %s", job.ID, len(terms), path)
		result.Glossary = path
		opts = append(opts, translator.WithTerms(terms))
	}
	orch, err := translator.New(primary, fallback, opts...)
	if err != nil {
		return nil, job.fail(NewErrorWithCause(ErrConfig, "create orchestrator", err))
	}

	outcome, err := orch.TranslateAll(ctx, batches, req.TargetLanguage, source)
	if outcome != nil {
		result.EngineCalls = outcome.EngineCalls
		result.Fallbacks = outcome.Fallbacks
		result.CacheHits = outcome.CacheHits
		result.Resumed = outcome.Resumed
	}
	if err != nil {
		return nil, job.fail(WrapError(err, Classify(err), "translate batches"))
	}

	// REASSEMBLING
	if err := job.advance(StateReassembling); err != nil {
		return nil, err
	}
	translations := reassembler.NewTranslations()
	for i, br := range outcome.Batches {
		if w := translations.Add(batches[i], br.Lines); w != nil {
			log.Warn("Job %s: %v", job.ID, w)
			result.Warnings = append(result.Warnings, *w)
		}
	}
	result.Output = reassembler.Reassemble(doc, translations.BySegment())

	if err := ctx.Err(); err != nil {
		return nil, job.fail(NewErrorWithCause(ErrCancelled, "job cancelled before write", err))
	}
	if out := p.outputPath(req); out != "" {
		if err := writeOutput(out, result.Output); err != nil {
			return nil, job.fail(NewErrorWithCause(ErrFileWrite, "write output", err).WithContext("path", out))
		}
		result.OutputPath = out
	}

	if checkpoints != nil {
		if err := checkpoints.clear(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Job %s: failed to clear checkpoints: %v", job.ID, err)
		}
	}

	if err := job.advance(StateDone); err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(started)
	log.Info("Job %s done in %s: %d batches, %d engine calls, %d fallbacks, %d warnings",
		job.ID, result.Elapsed.Round(time.Millisecond), result.Batches, result.EngineCalls, result.Fallbacks, len(result.Warnings))
	return result, nil
}

func (p *Pipeline) validate(req *Request) *JobError {
	switch {
	case req.InputPath == "" && req.Data == nil:
		return NewError(ErrValidation, "input path or data is required")
	case req.Data != nil && req.Name == "":
		return NewError(ErrValidation, "name is required to detect the format of data")
	case req.TargetLanguage == language.Und:
		return NewError(ErrValidation, "target language is required")
	case req.Primary == engine.KindUnknown || req.Fallback == engine.KindUnknown:
		return NewError(ErrValidation, "primary and fallback engine are required")
	case req.Primary == req.Fallback:
		return NewError(ErrValidation, fmt.Sprintf("primary and fallback engine must differ, both are %s", req.Primary))
	case req.BatchSize < 0:
		return NewError(ErrValidation, "batch size must not be negative")
	}
	if req.BatchSize == 0 {
		req.BatchSize = p.batchSize
	}
	return nil
}

func (p *Pipeline) engines(req Request) (engine.Engine, engine.Engine, *JobError) {
	primary, err := p.newEngine(req.Primary)
	if err != nil {
		return nil, nil, NewErrorWithCause(ErrConfig, "create primary engine", err).WithContext("engine", req.Primary)
	}
	fallback, err := p.newEngine(req.Fallback)
	if err != nil {
		return nil, nil, NewErrorWithCause(ErrConfig, "create fallback engine", err).WithContext("engine", req.Fallback)
	}
	return primary, fallback, nil
}

func (p *Pipeline) parse(req Request) (*subtitle.Document, error) {
	if req.Data != nil {
		format, err := subtitle.FormatFromPath(req.Name)
		if err != nil {
			return nil, err
		}
		return subtitle.Parse(req.Data, format)
	}
	return subtitle.ReadFile(req.InputPath)
}

func (p *Pipeline) outputPath(req Request) string {
	if req.OutputPath != "" {
		return req.OutputPath
	}
	if req.InputPath == "" {
		return ""
	}
	return OutputPath(req.InputPath, req.TargetLanguage, p.outputStyle)
}

func (p *Pipeline) openCheckpoints(ctx context.Context, jobID string) *persistentBatchCheckpointStore {
	if p.checkpoints == nil {
		return nil
	}
	store, err := newPersistentBatchCheckpointStore(ctx, p.checkpoints, jobID)
	if err != nil {
		log.Warn("Job %s: checkpoints unavailable: %v", jobID, err)
		return nil
	}
	if n := store.Len(); n > 0 {
		log.Info("Job %s: resuming with %d checkpointed batches", jobID, n)
	}
	return store
}

// StableJobID names a CLI run so an interrupted translation of the same file
// into the same language resumes from its checkpoints
func StableJobID(inputPath string, target language.Tag) string {
	abs, err := filepath.Abs(inputPath)
	if err != nil {
		abs = inputPath
	}
	return "cli:" + abs + "|" + target.String()
}

// loadGlossary finds the term map next to the input or in a parent directory.
// A broken glossary is logged and ignored.
func loadGlossary(req Request, source language.Tag) (string, termmap.TermMap) {
	if req.InputPath == "" || source == language.Und {
		return "", nil
	}
	path := termmap.Find(filepath.Dir(req.InputPath), source, req.TargetLanguage)
	if path == "" {
		return "", nil
	}
	terms, err := termmap.Load(path)
	if err != nil {
		log.Warn("Ignoring glossary %s: %v", path, err)
		return "", nil
	}
	return path, terms
}

func writeOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return reassembler.WriteFile(path, data)
}
