package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackfiller struct {
	calls   chan struct{}
	updated int
	err     error
}

func (b *countingBackfiller) BackfillParticipants(ctx context.Context) (int, error) {
	select {
	case b.calls <- struct{}{}:
	default:
	}
	return b.updated, b.err
}

func TestRunBackfill(t *testing.T) {
	repo := &countingBackfiller{calls: make(chan struct{}, 1), updated: 3}
	updated, err := RunBackfill(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 3, updated)

	repo.err = errors.New("db down")
	_, err = RunBackfill(context.Background(), repo)
	assert.Error(t, err)
}

func TestStartBackfillRejectsInvalidCron(t *testing.T) {
	_, err := StartBackfill(context.Background(), "not a cron", &countingBackfiller{})
	assert.Error(t, err)
}

func TestSchedulerRunsOnTick(t *testing.T) {
	repo := &countingBackfiller{calls: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// one second before a minute boundary, so the every-minute tick is imminent
	fixed := time.Date(2024, 5, 1, 10, 0, 59, 0, time.UTC)
	go runScheduler(ctx, "* * * * *", repo, func() time.Time { return fixed })

	select {
	case <-repo.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("backfill was not run")
	}
}
