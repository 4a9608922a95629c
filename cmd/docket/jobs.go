package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/docket/job"
)

func (a *app) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the queue and provision backend indexes or tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := a.queue().Create(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %s ready\n", a.queueName)
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> [json]",
		Short: "Enqueue a job and print its id",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 2 {
				data = []byte(args[1])
				if !json.Valid(data) {
					return fmt.Errorf("job data is not valid JSON: %s", args[1])
				}
			}
			jobID, err := a.queue().AddJob(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Print the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			st, err := a.queue().JobStatus(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			j, err := a.queue().FindJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(newJobView(j))
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs with a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := job.ParseStatus(status)
			if err != nil {
				return err
			}
			jobs, err := a.queue().FindJobsByStatus(cmd.Context(), st)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tUPDATED\tERROR")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", j.ID, j.Name, j.UpdatedAt.Format(time.RFC3339), j.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", string(job.StatusPending), "pending, started, finished or failed")
	return cmd
}

func (a *app) countCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count jobs with a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := job.ParseStatus(status)
			if err != nil {
				return err
			}
			n, err := a.queue().CountJobsByStatus(cmd.Context(), st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(job.StatusPending), "pending, started, finished or failed")
	return cmd
}

func (a *app) purgeCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every job with a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status == "" {
				return errors.New("--status is required")
			}
			st, err := job.ParseStatus(status)
			if err != nil {
				return err
			}
			n, err := a.queue().RemoveJobsByStatus(cmd.Context(), st)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d %s jobs\n", n, st)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, finished or failed")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if err := a.queue().RemoveJob(cmd.Context(), jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed job %d\n", jobID)
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print job counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.queue().Stats(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, st := range []job.Status{job.StatusPending, job.StatusStarted, job.StatusFinished, job.StatusFailed} {
				fmt.Fprintf(tw, "%s\t%d\n", st, stats[st])
			}
			return tw.Flush()
		},
	}
}

// jobView prints JSON job data inline instead of base64.
type jobView struct {
	*job.Job
	Data json.RawMessage `json:"data,omitempty"`
}

func newJobView(j *job.Job) any {
	if len(j.Data) > 0 && !json.Valid(j.Data) {
		return j
	}
	return jobView{Job: j, Data: j.Data}
}

func parseJobID(s string) (int64, error) {
	jobID, err := strconv.ParseInt(s, 10, 64)
	if err != nil || jobID < 1 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return jobID, nil
}
