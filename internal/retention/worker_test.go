package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	calls    atomic.Int32
	busyLeft atomic.Int32
	err      error
}

func (f *fakePruner) CleanupTranscripts(_ context.Context, _ time.Duration) (int64, error) {
	f.calls.Add(1)
	if f.busyLeft.Load() > 0 {
		f.busyLeft.Add(-1)
		return 0, errors.New("SQLITE_BUSY")
	}
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func TestSweepRetriesBusy(t *testing.T) {
	p := &fakePruner{}
	p.busyLeft.Store(2)

	n, err := Sweep(context.Background(), p, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 3, p.calls.Load())
}

func TestSweepReturnsHardErrors(t *testing.T) {
	p := &fakePruner{err: errors.New("disk I/O error")}

	_, err := Sweep(context.Background(), p, time.Hour)
	require.Error(t, err)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestStartRunsUntilCancelled(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := Start(ctx, p, time.Hour, 10*time.Millisecond)
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
