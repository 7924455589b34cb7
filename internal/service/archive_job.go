package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/notify"
)

const (
	archiveLockKey = "lock:archive:events"

	// defaultBackfill is how many windows a fresh job revisits before the
	// current one. Windows already in cold storage are skipped by the
	// archiver.
	defaultBackfill = 24
)

// ArchiveMetrics counts exported events.
type ArchiveMetrics interface {
	RecordArchived(ctx context.Context, count int64)
}

// ArchiveJob periodically exports aged events to cold storage. Each window
// is [until-interval, until) where until is now minus retention, truncated to
// the interval, so every run lands on the same boundaries. A run exports
// every window between the last one it finished and the current one, so
// ticks missed while the job was down or failing are caught up in order.
type ArchiveJob struct {
	archiver  domain.Archiver
	locks     domain.LockManager
	notifier  *notify.Notifier
	metrics   ArchiveMetrics
	interval  time.Duration
	retention time.Duration
	backfill  int
	logger    *slog.Logger
	now       func() time.Time

	// done is the end of the last window exported by this process.
	done time.Time
}

// NewArchiveJob creates an ArchiveJob. locks may be nil on a single node.
func NewArchiveJob(archiver domain.Archiver, locks domain.LockManager, interval, retention time.Duration, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver:  archiver,
		locks:     locks,
		interval:  interval,
		retention: retention,
		backfill:  defaultBackfill,
		logger:    logger.With(slog.String("component", "archive_job")),
		now:       time.Now,
	}
}

// WithNotifier reports non-empty exports to operators.
func (j *ArchiveJob) WithNotifier(n *notify.Notifier) *ArchiveJob {
	j.notifier = n
	return j
}

// WithMetrics attaches the exported-events counter.
func (j *ArchiveJob) WithMetrics(m ArchiveMetrics) *ArchiveJob {
	j.metrics = m
	return j
}

// WithClock overrides the time source.
func (j *ArchiveJob) WithClock(now func() time.Time) *ArchiveJob {
	j.now = now
	return j
}

// WithBackfill sets how many windows before the current one the first run
// revisits.
func (j *ArchiveJob) WithBackfill(windows int) *ArchiveJob {
	if windows >= 0 {
		j.backfill = windows
	}
	return j
}

// Window returns the export window for the current time.
func (j *ArchiveJob) Window() (since, until time.Time) {
	until = j.now().UTC().Add(-j.retention).Truncate(j.interval)
	return until.Add(-j.interval), until
}

// Run exports once immediately and then on every interval until ctx is done.
func (j *ArchiveJob) Run(ctx context.Context) error {
	j.logger.InfoContext(ctx, "archive job started",
		slog.Duration("interval", j.interval),
		slog.Duration("retention", j.retention),
	)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			j.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce exports every window that ended since the last successful run, up
// to and including the current one, and returns the total exported. A failed
// window stops the run; the next run resumes from it. Another node holding
// the lock is not an error; the run is skipped and reports zero.
func (j *ArchiveJob) RunOnce(ctx context.Context) (int64, error) {
	if j.locks != nil {
		unlock, err := j.locks.Acquire(ctx, archiveLockKey, j.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			j.logger.DebugContext(ctx, "archive lock held elsewhere, skipping")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("archive_job: acquire lock: %w", err)
		}
		defer unlock()
	}

	_, latest := j.Window()
	start := j.done
	if start.IsZero() {
		start = latest.Add(-time.Duration(j.backfill+1) * j.interval)
	}
	if !start.Before(latest) {
		return 0, nil
	}

	var total int64
	first := start
	for until := start.Add(j.interval); !until.After(latest); until = until.Add(j.interval) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		since := until.Add(-j.interval)
		n, err := j.archiver.ArchiveEvents(ctx, since, until)
		if err != nil {
			j.report(ctx, first, since, total)
			return total, fmt.Errorf("archive_job: archive %s..%s: %w",
				since.Format(time.RFC3339), until.Format(time.RFC3339), err)
		}
		total += n
		j.done = until
	}
	j.report(ctx, first, latest, total)
	return total, nil
}

func (j *ArchiveJob) report(ctx context.Context, since, until time.Time, n int64) {
	if n == 0 {
		return
	}
	j.logger.InfoContext(ctx, "events archived",
		slog.Int64("count", n),
		slog.Time("since", since),
		slog.Time("until", until),
	)
	if j.metrics != nil {
		j.metrics.RecordArchived(ctx, n)
	}
	if j.notifier != nil {
		title, body := notify.ArchiveMessage(since, until, n)
		if err := j.notifier.Notify(ctx, notify.EventArchive, title, body); err != nil {
			j.logger.WarnContext(ctx, "archive alert failed", slog.String("error", err.Error()))
		}
	}
}
