package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/docket"
	"github.com/xraph/docket/backoff"
	"github.com/xraph/docket/cron"
	"github.com/xraph/docket/job"
	"github.com/xraph/docket/middleware"
	"github.com/xraph/docket/worker"
)

// maxErrTail bounds how much of a failed command's stderr ends up in the
// job's error message.
const maxErrTail = 512

func (a *app) workCmd() *cobra.Command {
	cfg := docket.DefaultConfig()
	docket.FromEnv(&cfg)

	var (
		command         string
		timeout         time.Duration
		drainMax        time.Duration
		fetchRate       float64
		shutdownTimeout time.Duration
		exitWhenDrained bool
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run a worker that executes a shell command per job",
		Long: `Run a worker against the queue. Each job runs "sh -c <exec>" with the job
data on stdin and DOCKET_JOB_ID, DOCKET_JOB_NAME and DOCKET_QUEUE in the
environment. A non-zero exit marks the job failed. SIGINT or SIGTERM stop
the worker after in-flight jobs finish; a second signal exits immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if command == "" {
				return errors.New("--exec is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mws := []middleware.Middleware{
				middleware.Logging(a.logger),
				middleware.Tracing(),
				middleware.Metrics(),
			}
			if timeout > 0 {
				mws = append(mws, middleware.Timeout(timeout))
			}

			opts := []worker.Option{
				worker.WithConfig(cfg),
				worker.WithLogger(a.logger),
				worker.WithExtensions(a.extensions),
				worker.WithMiddleware(mws...),
				worker.WithoutStoreClose(),
			}
			if drainMax > cfg.DrainDelay {
				opts = append(opts, worker.WithDrainBackoff(backoff.NewExponentialWithJitter(cfg.DrainDelay, drainMax)))
			}
			if fetchRate > 0 {
				opts = append(opts, worker.WithRateLimit(rate.Limit(fetchRate), cfg.Concurrency))
			}

			proc := shellProcessor(command, a.queueName, cmd.OutOrStdout(), cmd.ErrOrStderr())
			w, err := worker.New(a.queueName, a.store, proc, opts...)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if exitWhenDrained {
				var cancel context.CancelFunc
				gctx, cancel = context.WithCancel(gctx)
				defer cancel()
				a.extensions.Register(&drainWatcher{cancel: cancel})
			}

			g.Go(func() error {
				return w.Run(context.WithoutCancel(gctx))
			})
			g.Go(func() error {
				<-gctx.Done()
				// Restore default signal handling so a second signal kills
				// the process.
				stop()

				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := w.Stop(sctx); err != nil {
					return fmt.Errorf("stop worker: %w", err)
				}
				return nil
			})
			return g.Wait()
		},
	}

	f := cmd.Flags()
	f.StringVar(&command, "exec", "", "shell command run for each job")
	f.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "maximum outstanding fetch or process operations")
	f.DurationVar(&cfg.DrainDelay, "drain-delay", cfg.DrainDelay, "wait before re-querying an empty queue")
	f.DurationVar(&drainMax, "drain-max", 0, "grow the drain wait exponentially up to this value")
	f.DurationVar(&cfg.LockLifetime, "lock-lifetime", cfg.LockLifetime, "how long a job lease stays valid without renewal")
	f.DurationVar(&cfg.LockRenewal, "lock-renewal", cfg.LockRenewal, "how often a running job's lease is renewed")
	f.DurationVar(&cfg.StalledInterval, "stalled-interval", cfg.StalledInterval, "how often to scan for stalled jobs")
	f.BoolVar(&cfg.RemoveOnFinished, "remove-on-finished", cfg.RemoveOnFinished, "drop finished jobs instead of retaining them")
	f.BoolVar(&cfg.RemoveOnFailed, "remove-on-failed", cfg.RemoveOnFailed, "drop failed jobs instead of retaining them")
	f.DurationVar(&timeout, "timeout", 0, "per-job deadline, 0 for none")
	f.Float64Var(&fetchRate, "fetch-rate", 0, "maximum store fetches per second, 0 for unlimited")
	f.DurationVar(&shutdownTimeout, "shutdown-timeout", time.Minute, "how long to wait for in-flight jobs on stop")
	f.BoolVar(&exitWhenDrained, "exit-when-drained", false, "stop once the queue is empty and no job is running")
	return cmd
}

// shellProcessor runs command through sh for each job.
func shellProcessor(command, queue string, stdout, stderr io.Writer) job.Processor {
	return func(ctx context.Context, j *job.Job, _ job.Progress) error {
		c := exec.CommandContext(ctx, "sh", "-c", command)
		c.Stdin = bytes.NewReader(j.Data)
		c.Env = append(os.Environ(),
			"DOCKET_JOB_ID="+strconv.FormatInt(j.ID, 10),
			"DOCKET_JOB_NAME="+j.Name,
			"DOCKET_QUEUE="+queue,
		)

		var tail bytes.Buffer
		c.Stdout = stdout
		c.Stderr = io.MultiWriter(stderr, &tail)

		if err := c.Run(); err != nil {
			msg := strings.TrimSpace(tail.String())
			if len(msg) > maxErrTail {
				msg = msg[len(msg)-maxErrTail:]
			}
			if msg != "" {
				return fmt.Errorf("%w: %s", err, msg)
			}
			return err
		}
		return nil
	}
}

// drainWatcher cancels the work command once the queue drains.
type drainWatcher struct {
	cancel context.CancelFunc
}

func (d *drainWatcher) Name() string { return "exit-when-drained" }

func (d *drainWatcher) OnQueueDrained(_ context.Context, _ string, _ time.Duration) error {
	d.cancel()
	return nil
}

func (a *app) stalledCmd() *cobra.Command {
	cfg := docket.DefaultConfig()
	docket.FromEnv(&cfg)

	cmd := &cobra.Command{
		Use:   "stalled",
		Short: "Run one stalled-job scan and print the requeued ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			noop := func(context.Context, *job.Job, job.Progress) error { return nil }
			w, err := worker.New(a.queueName, a.store, noop,
				worker.WithConfig(cfg),
				worker.WithLogger(a.logger),
				worker.WithExtensions(a.extensions),
				worker.WithoutStoreClose(),
			)
			if err != nil {
				return err
			}

			ids, err := w.CheckStalledJobs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "no stalled jobs")
				return nil
			}
			for _, jobID := range ids {
				fmt.Fprintln(out, jobID)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&cfg.LockLifetime, "lock-lifetime", cfg.LockLifetime, "grace period for claimed jobs without a lease")
	return cmd
}

func (a *app) scheduleCmd() *cobra.Command {
	var tick time.Duration

	cmd := &cobra.Command{
		Use:   "schedule <entry> <cron-expr> <job-name> [json]",
		Short: "Enqueue a job on a cron schedule until interrupted",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 4 {
				data = []byte(args[3])
				if !json.Valid(data) {
					return fmt.Errorf("job data is not valid JSON: %s", args[3])
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := cron.NewScheduler(a.queue(),
				cron.WithTickInterval(tick),
				cron.WithLogger(a.logger),
				cron.WithEmitter(a.extensions),
			)
			e, err := s.Add(args[0], args[1], args[2], data)
			if err != nil {
				return err
			}
			a.logger.Info("schedule registered",
				slog.String("entry", e.Name),
				slog.String("schedule", e.Schedule),
			)
			if e.NextRunAt != nil {
				a.logger.Info("next run", slog.Time("at", *e.NextRunAt))
			}

			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return s.Stop(context.Background())
		},
	}
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "how often due entries are checked")
	return cmd
}
