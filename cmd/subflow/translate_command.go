package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/service"
	"github.com/MimeLyc/subflow/pkg/log"
)

type translateOptions struct {
	target    string
	primary   string
	fallback  string
	batchSize int
	output    string
	dryRun    bool
	noCache   bool
	quiet     bool
}

func (o translateOptions) configOptions() []config.Option {
	opts := []config.Option{func(c *config.Config) {
		if o.target != "" {
			c.Translate.TargetLanguage = o.target
		}
		if o.primary != "" {
			c.Translate.PrimaryEngine = o.primary
		}
		if o.fallback != "" {
			c.Translate.FallbackEngine = o.fallback
		}
		if o.batchSize > 0 {
			c.Translate.BatchSize = o.batchSize
		}
	}}
	if o.dryRun {
		opts = append(opts, config.SkipEngineCheck())
	}
	return opts
}

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var opts translateOptions

	cmd := &cobra.Command{
		Use:   "translate <file>...",
		Short: "Translate subtitle files and write them next to the source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "" && len(args) > 1 {
				return errors.New("--output can only be used with a single file")
			}

			cfg, err := ctx.loadConfig(opts.configOptions()...)
			if err != nil {
				return err
			}
			return runTranslate(cmd, cfg, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "Target language tag, e.g. zh, fr, pt-BR")
	cmd.Flags().StringVar(&opts.primary, "primary", "", "Primary engine (completion, generative, ollama, echo)")
	cmd.Flags().StringVar(&opts.fallback, "fallback", "", "Fallback engine, used once per failed batch")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Subtitle lines per engine call")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (single file only)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Run every stage with the echo engine and write nothing")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Do not read or write the translation cache")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide the progress bar")

	return cmd
}

func runTranslate(cmd *cobra.Command, cfg *config.Config, opts translateOptions, args []string) error {
	primary, fallback, err := cfg.Translate.Engines()
	if err != nil {
		return err
	}
	target := cfg.Translate.Target()

	var pipelineOpts []service.PipelineOption
	if opts.dryRun {
		pipelineOpts = append(pipelineOpts,
			service.WithEngineFactory(func(engine.Kind) (engine.Engine, error) { return engine.Echo{}, nil }),
			service.WithPacing(0))
	}

	if !opts.noCache && !opts.dryRun {
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		if c != nil {
			defer c.Close()
			pipelineOpts = append(pipelineOpts, service.WithCache(c))
		}
	}

	if !opts.dryRun {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
			pipelineOpts = append(pipelineOpts, service.WithCheckpoints(store))
		}
	}

	pipeline := service.NewPipelineFromConfig(cfg, pipelineOpts...)

	reqs := make([]service.Request, 0, len(args))
	for _, arg := range args {
		req, err := buildRequest(arg, opts, target, primary, fallback, cfg.Translate.BatchSize)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}

	var results []*service.Result
	var errs []error
	if len(reqs) == 1 {
		res, err := runWithProgress(cmd, pipeline, reqs[0], !opts.quiet)
		results, errs = []*service.Result{res}, []error{err}
	} else {
		results, errs = pipeline.RunAll(cmd.Context(), reqs, cfg.Queue.Workers)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderResults(reqs, results, errs))

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n  %s\n", displayName(reqs[i]), err, service.Advice(err))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(reqs))
	}
	return nil
}

func buildRequest(path string, opts translateOptions, target language.Tag, primary, fallback engine.Kind, batchSize int) (service.Request, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return service.Request{}, fmt.Errorf("resolve path: %w", err)
	}

	req := service.Request{
		JobID:          service.StableJobID(abs, target),
		InputPath:      abs,
		TargetLanguage: target,
		Primary:        primary,
		Fallback:       fallback,
		BatchSize:      batchSize,
		OutputPath:     opts.output,
	}

	if opts.dryRun {
		data, err := os.ReadFile(abs)
		if err != nil {
			return service.Request{}, service.NewErrorWithCause(service.ErrFileRead, "read subtitle file", err)
		}
		req.InputPath = ""
		req.Data = data
		req.Name = abs
		req.OutputPath = ""
	}
	return req, nil
}

func runWithProgress(cmd *cobra.Command, pipeline *service.Pipeline, req service.Request, show bool) (*service.Result, error) {
	job := service.NewJob(req)

	var bar *progressbar.ProgressBar
	if show {
		job.OnProgress(func(p service.Progress) {
			if p.Total == 0 {
				return
			}
			if bar == nil {
				bar = newProgressBar(cmd.ErrOrStderr(), displayName(req), p.Total)
			}
			_ = bar.Set(p.Batch)
		})
	}

	res, err := pipeline.Execute(cmd.Context(), job)
	if bar != nil {
		_ = bar.Finish()
	}
	log.Debug("job %s finished in state %s", job.ID, job.State())
	return res, err
}

func newProgressBar(w io.Writer, name string, batches int) *progressbar.ProgressBar {
	return progressbar.NewOptions(batches,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(filepath.Base(name)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func displayName(req service.Request) string {
	if req.InputPath != "" {
		return req.InputPath
	}
	return req.Name
}

func renderResults(reqs []service.Request, results []*service.Result, errs []error) string {
	headers := []string{"File", "Format", "Source", "Segments", "Batches", "Fallbacks", "Cached", "Warnings", "Size", "Output"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(reqs))
	for i, req := range reqs {
		name := filepath.Base(displayName(req))
		if i < len(errs) && errs[i] != nil {
			rows = append(rows, []string{name, "-", "-", "-", "-", "-", "-", "-", "-", "FAILED: " + service.Classify(errs[i]).String()})
			continue
		}
		res := results[i]
		output := res.OutputPath
		if output == "" {
			output = "(not written)"
		}
		rows = append(rows, []string{
			name,
			string(res.Format),
			res.SourceLanguage.String(),
			fmt.Sprint(res.Segments),
			fmt.Sprint(res.Batches),
			fmt.Sprint(res.Fallbacks),
			fmt.Sprint(res.CacheHits + res.Resumed),
			fmt.Sprint(len(res.Warnings)),
			humanize.Bytes(uint64(len(res.Output))),
			output,
		})
	}
	return renderTable(headers, rows, aligns)
}
