package service

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/jobs"
)

// JobDefaults fill in what a queued payload leaves out
type JobDefaults struct {
	Target    language.Tag
	Primary   engine.Kind
	Fallback  engine.Kind
	BatchSize int
}

// DefaultsFromConfig reads the translate section of cfg
func DefaultsFromConfig(cfg *config.Config) (JobDefaults, error) {
	primary, fallback, err := cfg.Translate.Engines()
	if err != nil {
		return JobDefaults{}, err
	}
	return JobDefaults{
		Target:    cfg.Translate.Target(),
		Primary:   primary,
		Fallback:  fallback,
		BatchSize: cfg.Translate.BatchSize,
	}, nil
}

// RequestFromPayload turns a queued payload into a pipeline request
func RequestFromPayload(id string, payload jobs.JobPayload, defaults JobDefaults) (Request, error) {
	req := Request{
		JobID:          id,
		InputPath:      payload.SubtitleFile,
		TargetLanguage: defaults.Target,
		Primary:        defaults.Primary,
		Fallback:       defaults.Fallback,
		BatchSize:      defaults.BatchSize,
		OutputPath:     payload.OutputFile,
	}

	if payload.TargetLanguage != "" {
		tag, err := language.Parse(payload.TargetLanguage)
		if err != nil {
			return Request{}, NewErrorWithCause(ErrValidation, fmt.Sprintf("invalid target language %q", payload.TargetLanguage), err)
		}
		req.TargetLanguage = tag
	}
	if payload.PrimaryEngine != "" {
		kind, err := engine.ParseKind(payload.PrimaryEngine)
		if err != nil {
			return Request{}, NewErrorWithCause(ErrValidation, "invalid primary engine", err)
		}
		req.Primary = kind
	}
	if payload.FallbackEngine != "" {
		kind, err := engine.ParseKind(payload.FallbackEngine)
		if err != nil {
			return Request{}, NewErrorWithCause(ErrValidation, "invalid fallback engine", err)
		}
		req.Fallback = kind
	}
	if payload.BatchSize > 0 {
		req.BatchSize = payload.BatchSize
	}
	return req, nil
}

// Executor adapts the pipeline to the job queue. The queue's job id scopes the
// checkpoints, so a job interrupted by shutdown resumes where it stopped.
func (p *Pipeline) Executor(defaults JobDefaults) jobs.Executor {
	return func(ctx context.Context, queued *jobs.TranslationJob, report jobs.ProgressFunc) (jobs.Result, error) {
		req, err := RequestFromPayload(queued.ID, queued.Payload, defaults)
		if err != nil {
			return jobs.Result{}, err
		}

		job := NewJob(req).OnProgress(func(prog Progress) {
			if report != nil {
				report(jobs.Progress{Stage: string(prog.State), Done: prog.Batch, Total: prog.Total})
			}
		})

		var result *Result
		err = SafeExecute(func() error {
			var runErr error
			result, runErr = p.Execute(ctx, job)
			return runErr
		})
		if err != nil {
			return jobs.Result{}, err
		}

		return jobs.Result{
			OutputFile: result.OutputPath,
			Warnings:   result.WarningStrings(),
		}, nil
	}
}
