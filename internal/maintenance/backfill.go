package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/adhocore/gronx"

	"inbox-service/internal/observability"
)

const (
	backfillJob = "participants_backfill"
	// DefaultBackfillCron runs the backfill nightly at 03:00 UTC.
	DefaultBackfillCron = "0 3 * * *"
)

// Backfiller writes participants on messages stored before the field existed.
type Backfiller interface {
	BackfillParticipants(ctx context.Context) (int, error)
}

// RunBackfill executes one backfill pass and records its outcome.
func RunBackfill(ctx context.Context, repo Backfiller) (int, error) {
	started := time.Now()
	updated, err := repo.BackfillParticipants(ctx)
	if err != nil {
		observability.IncMaintenanceRun(backfillJob, "error")
		log.Printf("maintenance job=%s failed updated=%d: %v", backfillJob, updated, err)
		return updated, err
	}
	observability.IncMaintenanceRun(backfillJob, "ok")
	log.Printf("maintenance job=%s updated=%d duration=%s", backfillJob, updated, time.Since(started))
	return updated, nil
}

// StartBackfill schedules RunBackfill on cronExpr until the returned cancel is called.
func StartBackfill(ctx context.Context, cronExpr string, repo Backfiller) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = DefaultBackfillCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid backfill cron expression: %s", cronExpr)
	}

	ctx, cancel := context.WithCancel(ctx)
	go runScheduler(ctx, cronExpr, repo, time.Now)
	log.Printf("maintenance job=%s scheduled cron=%q", backfillJob, cronExpr)
	return cancel, nil
}

func runScheduler(ctx context.Context, cronExpr string, repo Backfiller, now func() time.Time) {
	for {
		current := now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, current, false)
		wait := next.Sub(current)
		if err != nil {
			log.Printf("maintenance job=%s next tick failed cron=%q: %v", backfillJob, cronExpr, err)
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err != nil {
			continue
		}
		_, _ = RunBackfill(ctx, repo)
	}
}
