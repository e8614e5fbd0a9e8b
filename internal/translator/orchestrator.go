package translator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/chunker"
	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/termmap"
	"github.com/MimeLyc/subflow/pkg/log"
)

const (
	DefaultPacing      = time.Second
	DefaultCallTimeout = 60 * time.Second
)

// Orchestrator owns the engines of one job. Batches are translated strictly
// in order; it is not meant to be shared between jobs.
type Orchestrator struct {
	primary  engine.Engine
	fallback engine.Engine

	pacing      time.Duration
	callTimeout time.Duration
	cache       Cache
	checkpoints CheckpointStore
	terms       termmap.TermMap
	onProgress  func(Progress)
	sleep       func(ctx context.Context, d time.Duration) error

	calls atomic.Int64
}

type Option func(*Orchestrator)

// WithPacing sets the delay between two engine-calling batches
func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pacing = d
	}
}

// WithCallTimeout bounds each engine call
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

func WithCache(c Cache) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

func WithCheckpoints(s CheckpointStore) Option {
	return func(o *Orchestrator) {
		o.checkpoints = s
	}
}

// WithTerms sets the glossary. Each batch is sent with the entries it contains.
func WithTerms(tm termmap.TermMap) Option {
	return func(o *Orchestrator) {
		o.terms = tm
	}
}

func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) {
		o.onProgress = fn
	}
}

// WithSleep replaces the pacing sleep, mainly for tests
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// New creates an orchestrator. Both engines are required.
func New(primary, fallback engine.Engine, opts ...Option) (*Orchestrator, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary engine is required")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback engine is required")
	}

	o := &Orchestrator{
		primary:     primary,
		fallback:    fallback,
		pacing:      DefaultPacing,
		callTimeout: DefaultCallTimeout,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// EngineCalls returns the number of engine calls made so far
func (o *Orchestrator) EngineCalls() int {
	return int(o.calls.Load())
}

// TranslateBatch calls the primary engine and, on failure, the fallback exactly once.
// If ctx itself is done no fallback is attempted and ctx's error is returned.
func (o *Orchestrator) TranslateBatch(ctx context.Context, batch chunker.Batch, target, source language.Tag) ([]string, engine.Kind, error) {
	return o.translateRequest(ctx, batch.Index, o.request(batch, target, source))
}

func (o *Orchestrator) request(batch chunker.Batch, target, source language.Tag) engine.Request {
	req := engine.Request{Text: batch.Text(), Target: target, Source: source}
	if len(o.terms) > 0 {
		if matched := termmap.Match(o.terms, req.Text); len(matched) > 0 {
			req.Terms = matched
		}
	}
	return req
}

func (o *Orchestrator) translateRequest(ctx context.Context, batchIndex int, req engine.Request) ([]string, engine.Kind, error) {
	lines, primaryErr := o.call(ctx, o.primary, req)
	if primaryErr == nil {
		return lines, o.primary.Kind(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, engine.KindUnknown, err
	}

	log.Warn("batch %d: %s engine failed, falling back to %s: %v", batchIndex, o.primary.Kind(), o.fallback.Kind(), primaryErr)

	lines, fallbackErr := o.call(ctx, o.fallback, req)
	if fallbackErr == nil {
		return lines, o.fallback.Kind(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, engine.KindUnknown, err
	}

	return nil, engine.KindUnknown, &TranslationFailed{
		BatchIndex: batchIndex,
		Primary:    primaryErr,
		Fallback:   fallbackErr,
	}
}

// TranslateAll translates batches in order. It stops at the first failed batch.
func (o *Orchestrator) TranslateAll(ctx context.Context, batches []chunker.Batch, target, source language.Tag) (*Outcome, error) {
	outcome := &Outcome{Batches: make([]BatchResult, 0, len(batches))}
	callsBefore := o.EngineCalls()
	defer func() {
		outcome.EngineCalls = o.EngineCalls() - callsBefore
	}()

	offset := 0
	calledEngine := false
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		start, end := offset, offset+batch.Len()
		offset = end

		result, err := o.translateOne(ctx, batch, start, end, target, source, &calledEngine)
		if err != nil {
			return outcome, err
		}

		switch result.Source {
		case SourceCache:
			outcome.CacheHits++
		case SourceCheckpoint:
			outcome.Resumed++
		case SourceEngine:
			if result.Engine != o.primary.Kind() {
				outcome.Fallbacks++
			}
		}
		outcome.Batches = append(outcome.Batches, result)

		if o.onProgress != nil {
			o.onProgress(Progress{Batch: i + 1, Total: len(batches), Engine: result.Engine, Source: result.Source})
		}
	}

	return outcome, nil
}

func (o *Orchestrator) translateOne(
	ctx context.Context,
	batch chunker.Batch,
	start, end int,
	target, source language.Tag,
	calledEngine *bool,
) (BatchResult, error) {
	result := BatchResult{Index: batch.Index}

	if o.checkpoints != nil {
		if lines, ok := o.checkpoints.Load(start, end); ok {
			log.Debug("batch %d: resumed from checkpoint", batch.Index)
			result.Lines, result.Source = lines, SourceCheckpoint
			return result, nil
		}
	}

	req := o.request(batch, target, source)
	if lines, kind, ok := o.lookupCache(req); ok {
		result.Lines, result.Engine, result.Source = lines, kind, SourceCache
		o.saveCheckpoint(ctx, start, end, lines)
		return result, nil
	}

	if *calledEngine && o.pacing > 0 {
		if err := o.sleep(ctx, o.pacing); err != nil {
			return result, err
		}
	}
	*calledEngine = true

	lines, kind, err := o.translateRequest(ctx, batch.Index, req)
	if err != nil {
		return result, err
	}

	if o.cache != nil {
		if err := o.cache.Put(CacheKey(kind, req), strings.Join(lines, "\n")); err != nil {
			log.Warn("batch %d: failed to cache translation: %v", batch.Index, err)
		}
	}
	o.saveCheckpoint(ctx, start, end, lines)

	result.Lines, result.Engine, result.Source = lines, kind, SourceEngine
	return result, nil
}

func (o *Orchestrator) lookupCache(req engine.Request) ([]string, engine.Kind, bool) {
	if o.cache == nil {
		return nil, engine.KindUnknown, false
	}
	for _, kind := range []engine.Kind{o.primary.Kind(), o.fallback.Kind()} {
		value, ok, err := o.cache.Get(CacheKey(kind, req))
		if err != nil {
			log.Warn("translation cache lookup failed: %v", err)
			return nil, engine.KindUnknown, false
		}
		if ok {
			return splitResponse(value), kind, true
		}
	}
	return nil, engine.KindUnknown, false
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, start, end int, lines []string) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.Save(ctx, start, end, lines); err != nil {
		log.Warn("failed to save checkpoint for units %d-%d: %v", start, end, err)
	}
}

// call runs one engine under the per-call timeout. Every failure is an *engine.Error.
func (o *Orchestrator) call(ctx context.Context, e engine.Engine, req engine.Request) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	o.calls.Add(1)
	started := time.Now()
	text, err := e.Translate(callCtx, req)
	if err != nil {
		var engErr *engine.Error
		if !errors.As(err, &engErr) {
			err = &engine.Error{Kind: e.Kind(), Cause: err}
		}
		return nil, err
	}

	log.Debug("%s engine translated %d lines in %s", e.Kind(), req.Lines(), time.Since(started).Round(time.Millisecond))
	return splitResponse(text), nil
}

// CacheKey identifies a response by engine, target language, batch text and
// the glossary entries sent with it. The source language is not part of the key.
func CacheKey(kind engine.Kind, req engine.Request) string {
	h := sha256.New()
	h.Write([]byte(kind.String() + "\x00" + req.Target.String() + "\x00" + req.Text))

	sources := make([]string, 0, len(req.Terms))
	for source := range req.Terms {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		h.Write([]byte("\x00" + source + "\x01" + req.Terms[source]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func splitResponse(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
