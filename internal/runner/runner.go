// Package runner drives a batch extraction end to end: authenticate,
// reach the query screen, process every record, consolidate the output,
// and notify.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opextools/portal_agent/internal/input"
	"github.com/opextools/portal_agent/internal/notify"
	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/relay"
	"github.com/opextools/portal_agent/internal/snapshot"
	"github.com/opextools/portal_agent/internal/storage"
)

const notifyTimeout = 10 * time.Second

// Driver is the portal surface the runner drives. portal.Session
// implements it.
type Driver interface {
	Authenticate(ctx context.Context, user, password string) error
	NavigateToQuery(ctx context.Context) error
	ProcessRecord(ctx context.Context, cpf string) portal.Result
	Screenshot() ([]byte, error)
}

// Options wires a batch run. Stream, Broker, and Snapshots are optional;
// a missing Tracker or Aggregator is replaced with a fresh one.
type Options struct {
	Driver     Driver
	Batch      *input.Batch
	Stream     *storage.StreamLog
	Tracker    *Tracker
	Aggregator *Aggregator
	Broker     *relay.Broker
	Snapshots  *snapshot.Store

	User       string
	Password   string
	OutputPath string

	NotifyURL    string
	NotifyClient *http.Client
}

// Runner executes one batch.
type Runner struct {
	opts Options
}

func New(opts Options) *Runner {
	if opts.Tracker == nil {
		opts.Tracker = NewTracker(opts.Broker)
	}
	if opts.Aggregator == nil {
		opts.Aggregator = NewAggregator()
	}
	return &Runner{opts: opts}
}

// Run processes the whole batch. Individual record failures are folded
// into the results; the returned error is reserved for run-fatal
// conditions: login, navigation, consolidation, and cancellation. A batch
// with zero usable identifiers completes with a warning, not an error.
func (r *Runner) Run(ctx context.Context) error {
	opts := r.opts
	start := time.Now()

	total := opts.Batch.NonEmpty()
	skipped := len(opts.Batch.Records) - total
	opts.Tracker.SetTotal(total)
	if total == 0 {
		slog.Warn("batch has no records with identifiers", "path", opts.Batch.Path, "rows", len(opts.Batch.Records))
	} else {
		slog.Info("batch loaded", "path", opts.Batch.Path, "rows", len(opts.Batch.Records), "records", total)
	}

	opts.Tracker.SetState(StateLogin)
	if err := opts.Driver.Authenticate(ctx, opts.User, opts.Password); err != nil {
		r.snapshotFailure(snapshot.KindLoginFailure, "", err.Error())
		opts.Tracker.Fail(err)
		return err
	}
	slog.Info("authenticated", "user", opts.User)

	opts.Tracker.SetState(StateNavigation)
	if err := opts.Driver.NavigateToQuery(ctx); err != nil {
		r.snapshotFailure(snapshot.KindNavigationFailure, "", err.Error())
		opts.Tracker.Fail(err)
		return err
	}

	opts.Tracker.SetState(StateProcessing)
	processed := 0
	for _, rec := range opts.Batch.Records {
		if ctx.Err() != nil {
			slog.Warn("run cancelled, consolidating partial results", "processed", processed, "total", total)
			return r.finish(ctx, start, total, skipped, r.cancelError(ctx))
		}
		if rec.CPF == "" {
			slog.Warn("row has no identifier, skipping", "row", rec.Row)
			continue
		}

		res := opts.Driver.ProcessRecord(ctx, rec.CPF)
		if ctx.Err() != nil && !res.OK() {
			slog.Warn("record interrupted by shutdown", "cpf", rec.CPF, "row", rec.Row)
			return r.finish(ctx, start, total, skipped, r.cancelError(ctx))
		}

		processed++
		opts.Aggregator.Collect(res)
		opts.Tracker.RecordResult(res)

		if opts.Stream != nil {
			if err := opts.Stream.Append(res); err != nil {
				slog.Warn("stream append failed", "cpf", res.CPF, "error", err)
			}
		}
		if opts.Broker != nil {
			opts.Broker.PublishJSON(relay.FeedRecords, res)
		}

		prog := NewProgress(processed, total, start)
		slog.Info("record processed",
			"cpf", res.CPF,
			"status", res.Status,
			"done", prog.Index,
			"total", prog.Total,
			"percent", fmt.Sprintf("%.1f", prog.Percent))
		if opts.Broker != nil {
			opts.Broker.PublishJSON(relay.FeedProgress, prog)
		}

		if !res.OK() {
			r.snapshotFailure(snapshot.KindRecordFailure, res.CPF, res.Mensagem)
		}
	}

	return r.finish(ctx, start, total, skipped, nil)
}

// finish consolidates whatever was collected, sends the completion
// notification, and settles the tracker. cause carries the cancellation
// error for interrupted runs.
func (r *Runner) finish(ctx context.Context, start time.Time, total, skipped int, cause error) error {
	opts := r.opts
	opts.Tracker.SetState(StateConsolidating)

	written, err := opts.Aggregator.Finalize(opts.OutputPath)
	if err != nil {
		err = portal.NewError(portal.CodeConfiguration, "consolidated workbook not written", err)
		opts.Tracker.Fail(err)
		return err
	}

	succeeded, failed := opts.Aggregator.Counts()
	if written {
		slog.Info("consolidated workbook written", "path", opts.OutputPath, "records", succeeded+failed)
	} else {
		slog.Warn("no results to consolidate, skipping workbook", "path", opts.OutputPath)
	}

	r.notifyCompletion(ctx, succeeded, failed, skipped)

	if cause != nil {
		opts.Tracker.Fail(cause)
		return cause
	}

	opts.Tracker.SetState(StateDone)
	slog.Info("run complete",
		"total", total,
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Second))
	return nil
}

func (r *Runner) cancelError(ctx context.Context) error {
	return portal.NewError(portal.CodeSession, "run cancelled", ctx.Err())
}

func (r *Runner) notifyCompletion(ctx context.Context, succeeded, failed, skipped int) {
	opts := r.opts
	if opts.NotifyURL == "" {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	summary := notify.Summary{Succeeded: succeeded, Failed: failed, Skipped: skipped}
	if err := notify.SendSummary(nctx, opts.NotifyClient, opts.NotifyURL, summary); err != nil {
		slog.Warn("completion notification failed", "error", err)
	}
}

func (r *Runner) snapshotFailure(kind, cpf, notes string) {
	opts := r.opts
	if opts.Snapshots == nil {
		return
	}

	img, err := opts.Driver.Screenshot()
	if err != nil {
		slog.Warn("failure screenshot unavailable", "kind", kind, "error", err)
		return
	}
	meta, err := opts.Snapshots.Save(snapshot.Meta{Kind: kind, CPF: cpf, Notes: notes}, img)
	if err != nil {
		slog.Warn("failure snapshot not stored", "kind", kind, "error", err)
		return
	}
	slog.Info("failure snapshot stored", "id", meta.ID, "kind", kind, "cpf", cpf)
}
