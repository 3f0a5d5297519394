// Package check runs one attendance check over the reporting window and
// routes its outcome to the right notification.
package check

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrwatch/internal/attendance"
	"hrwatch/internal/credential"
	appLog "hrwatch/internal/log"
	"hrwatch/internal/model"
	"hrwatch/internal/window"
)

// Notifier delivers check outcomes.
type Notifier interface {
	SendAbsenceReport(ctx context.Context, w model.Window, res model.AggregateResult) error
	SendSessionExpired(ctx context.Context, cause error) error
	SendFailure(ctx context.Context, kind model.Kind, cause error) error
}

// Options configures a Runner.
type Options struct {
	Mode     window.Mode
	Location *time.Location
	// DryRun logs outcomes instead of sending notifications.
	DryRun bool
	Now    func() time.Time
}

// Runner ties the window calculator, credential refresher, fetcher and
// aggregator together. Check may be called repeatedly (daemon mode); runs
// are serialized.
type Runner struct {
	store     *credential.Store
	refresher *credential.Refresher
	launcher  credential.Launcher
	fetcher   attendance.MonthFetcher
	notifier  Notifier
	opts      Options

	runMu sync.Mutex

	mu   sync.RWMutex
	last *Status
}

// NewRunner builds a Runner. notifier may be nil when opts.DryRun is set.
func NewRunner(store *credential.Store, refresher *credential.Refresher, launcher credential.Launcher,
	fetcher attendance.MonthFetcher, notifier Notifier, opts Options) *Runner {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		store:     store,
		refresher: refresher,
		launcher:  launcher,
		fetcher:   fetcher,
		notifier:  notifier,
		opts:      opts,
	}
}

// Window returns the reporting window for the current time.
func (r *Runner) Window() model.Window {
	return window.Compute(r.opts.Now().In(r.opts.Location), r.opts.Mode)
}

// Run computes the window, fetches every month in it and aggregates the
// absences. Any failure aborts the run with no partial result.
func (r *Runner) Run(ctx context.Context) (model.Window, model.AggregateResult, error) {
	w := r.Window()
	appLog.Info("checking attendance window",
		"start", w.Start.Format(model.DateLayout),
		"end", w.End.Format(model.DateLayout),
		"months", len(w.Months),
		"credential", r.store.Status(),
	)

	creds := func(ctx context.Context) (credential.Credential, error) {
		return r.refresher.EnsureValid(ctx, r.store, r.launcher)
	}
	results, err := attendance.FetchWindow(ctx, w, creds, r.fetcher)
	if err != nil {
		return w, model.AggregateResult{}, err
	}
	return w, attendance.Aggregate(results, w), nil
}

// Check performs Run, reports the outcome and records it as the last run.
// It returns the run error if the run failed, else any notification error.
func (r *Runner) Check(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	st := Status{
		RunID:     uuid.NewString(),
		StartedAt: r.opts.Now(),
	}
	appLog.Info("attendance check start", "run_id", st.RunID, "dry_run", r.opts.DryRun)

	w, res, runErr := r.Run(ctx)
	notifyErr := r.Report(ctx, w, res, runErr)

	st.FinishedAt = r.opts.Now()
	st.WindowStart = w.Start.Format(model.DateLayout)
	st.WindowEnd = w.End.Format(model.DateLayout)
	st.Credential = r.store.Status()
	if runErr != nil {
		st.ErrorKind = model.KindOf(runErr)
		st.Error = runErr.Error()
	} else {
		st.TotalAbsent = res.TotalAbsent
		st.AbsentDays = res.AbsentDays
		st.ReportedAbsent = res.Totals.Absent.String()
		st.PayableDays = res.Totals.PayableDays.String()
	}
	if notifyErr != nil {
		st.NotifyError = notifyErr.Error()
	}
	r.record(st)

	appLog.Info("attendance check done",
		"run_id", st.RunID,
		"total_absent", st.TotalAbsent,
		"error_kind", st.ErrorKind,
		"duration", st.FinishedAt.Sub(st.StartedAt),
	)
	if runErr != nil {
		return runErr
	}
	return notifyErr
}

// Report routes the outcome of a run. A successful run with absences sends
// the absence report; a clean window sends nothing. Failures are routed by
// kind: session expiry gets its own notice, config errors are only logged
// and everything else gets a failure notice with a remediation hint.
func (r *Runner) Report(ctx context.Context, w model.Window, res model.AggregateResult, err error) error {
	if err == nil {
		if res.TotalAbsent == 0 {
			appLog.Info("no unexplained absences", "window", w.String())
			return nil
		}
		if r.opts.DryRun || r.notifier == nil {
			for _, a := range res.AbsentDays {
				appLog.Info("absence", "date", a.Date, "status", a.Status)
			}
			appLog.Info("dry run; absence report not sent", "total_absent", res.TotalAbsent)
			return nil
		}
		return r.notifier.SendAbsenceReport(ctx, w, res)
	}

	kind := model.KindOf(err)
	appLog.Error("attendance check failed", err, "kind", kind, "hint", model.Hint(kind))

	if kind == model.KindConfig {
		return nil
	}
	if r.opts.DryRun || r.notifier == nil {
		appLog.Info("dry run; failure notice not sent", "kind", kind)
		return nil
	}

	// The run context may already be done; the notice should still go out.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
	}
	if kind == model.KindSessionExpired || errors.Is(err, model.ErrSessionExpired) {
		return r.notifier.SendSessionExpired(ctx, err)
	}
	return r.notifier.SendFailure(ctx, kind, err)
}
