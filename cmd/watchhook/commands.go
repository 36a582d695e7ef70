package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/watchhook/watchhook/internal/watch"
)

func newFilterCmd(a *app) *cobra.Command {
	var jobPath string
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Decide whether a job is checked now (prints true or false)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := a.readJob(jobPath)
			if err != nil {
				return err
			}
			ok := a.hooks().FilterJob(job, nil)
			_, err = fmt.Fprintln(a.stdout, ok)
			return err
		},
	}
	cmd.Flags().StringVar(&jobPath, "job", "-", "job JSON file")
	return cmd
}

func newProcessJobCmd(a *app) *cobra.Command {
	var jobPath, statePath string
	cmd := &cobra.Command{
		Use:   "process-job",
		Short: "Run the pre-check hook and print the job to use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := a.readJob(jobPath)
			if err != nil {
				return err
			}
			state, err := a.readState(statePath)
			if err != nil {
				return err
			}
			out := a.hooks().ProcessJob(job, state)
			return json.NewEncoder(a.stdout).Encode(out)
		},
	}
	cmd.Flags().StringVar(&jobPath, "job", "-", "job JSON file")
	cmd.Flags().StringVar(&statePath, "state", "", "job state JSON file (optional)")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var jobPath, reportPath, statePath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the post-check hook: notify on changes, log errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jobPath == "-" && reportPath == "-" {
				return errors.New("--job and --report cannot both read from stdin")
			}
			job, err := a.readJob(jobPath)
			if err != nil {
				return err
			}
			report, err := readFile(a, reportPath, watch.DecodeReport)
			if err != nil {
				return err
			}
			state, err := a.readState(statePath)
			if err != nil {
				return err
			}
			a.hooks().ProcessReport(cmd.Context(), job, state, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobPath, "job", "", "job JSON file")
	cmd.Flags().StringVar(&reportPath, "report", "-", "report JSON file")
	cmd.Flags().StringVar(&statePath, "state", "", "job state JSON file (optional)")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Print configuration warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			warnings := a.cfg.Validate()
			if len(warnings) == 0 {
				_, err := fmt.Fprintln(a.stdout, "configuration OK")
				return err
			}
			for _, w := range warnings {
				if _, err := fmt.Fprintln(a.stdout, "warning:", w); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) readJob(path string) (watch.Job, error) {
	return readFile(a, path, watch.DecodeJob)
}

func (a *app) readState(path string) (watch.JobState, error) {
	if path == "" {
		return nil, nil
	}
	return readFile(a, path, watch.DecodeJobState)
}

// readFile decodes path with decode; "-" reads stdin.
func readFile[T any](a *app, path string, decode func(io.Reader) (T, error)) (T, error) {
	if path == "-" {
		return decode(a.stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return decode(f)
}
