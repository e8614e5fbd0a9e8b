package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List queued and finished jobs from the job database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(config.SkipEngineCheck())
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no job database configured (set DB_PATH)")
			}
			defer store.Close()

			list, err := store.LoadJobs(cmd.Context())
			if err != nil {
				return err
			}
			list = selectJobs(list, jobs.Status(strings.ToLower(status)), limit)

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprintln(out, renderJobs(list))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show jobs with this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show")

	return cmd
}

// selectJobs filters by status and returns the newest first
func selectJobs(list []*jobs.TranslationJob, status jobs.Status, limit int) []*jobs.TranslationJob {
	ret := make([]*jobs.TranslationJob, 0, len(list))
	for _, job := range list {
		if status != "" && job.Status != status {
			continue
		}
		ret = append(ret, job)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].UpdatedAt.After(ret[j].UpdatedAt)
	})
	if limit > 0 && len(ret) > limit {
		ret = ret[:limit]
	}
	return ret
}

func renderJobs(list []*jobs.TranslationJob) string {
	headers := []string{"ID", "Status", "File", "Target", "Progress", "Updated", "Result"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}

	rows := make([][]string, 0, len(list))
	for _, job := range list {
		id := job.ID
		if len(id) > 8 {
			id = id[:8]
		}

		progress := "-"
		if job.Progress.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Progress.Done, job.Progress.Total)
		}

		result := job.OutputFile
		if job.Error != "" {
			result = job.Error
		}

		rows = append(rows, []string{
			id,
			string(job.Status),
			filepath.Base(job.Payload.SubtitleFile),
			job.Payload.TargetLanguage,
			progress,
			humanize.Time(job.UpdatedAt),
			result,
		})
	}
	return renderTable(headers, rows, aligns)
}
