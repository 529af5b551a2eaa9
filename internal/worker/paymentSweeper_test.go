package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeExpirer returns the queued batch sizes one per call
type fakeExpirer struct {
	batches []int
	err     error
	cutoffs []time.Time
	limits  []int
}

func (f *fakeExpirer) ExpireStalePayments(_ context.Context, before time.Time, limit int) (int, error) {
	f.cutoffs = append(f.cutoffs, before)
	f.limits = append(f.limits, limit)
	if len(f.batches) == 0 {
		return 0, f.err
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func newTestSweeper(f *fakeExpirer, batch int) *PaymentSweeper {
	w := NewPaymentSweeper(f, time.Minute, 30*time.Minute, batch)
	w.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestSweep(t *testing.T) {
	tests := []struct {
		name      string
		batches   []int
		wantTotal int
		wantCalls int
	}{
		{"nothing stale", nil, 0, 1},
		{"single short batch", []int{3}, 3, 1},
		{"full batches then short", []int{10, 10, 4}, 24, 3},
		{"full batch then empty", []int{10}, 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeExpirer{batches: tt.batches}
			w := newTestSweeper(f, 10)

			assert.Equal(t, tt.wantTotal, w.Sweep(context.Background()))
			assert.Len(t, f.cutoffs, tt.wantCalls)

			for i := range f.cutoffs {
				assert.Equal(t, time.Date(2026, 6, 1, 11, 30, 0, 0, time.UTC), f.cutoffs[i])
				assert.Equal(t, 10, f.limits[i])
			}
		})
	}
}

func TestSweep_StopsOnError(t *testing.T) {
	f := &fakeExpirer{err: errors.New("db down")}
	w := newTestSweeper(f, 10)

	assert.Zero(t, w.Sweep(context.Background()))
	assert.Len(t, f.cutoffs, 1)
}

func TestSweep_CancelledContext(t *testing.T) {
	f := &fakeExpirer{batches: []int{10, 10}}
	w := newTestSweeper(f, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, w.Sweep(ctx))
	assert.Empty(t, f.cutoffs)
}

func TestStart_StopsWithContext(t *testing.T) {
	f := &fakeExpirer{}
	w := NewPaymentSweeper(f, 5*time.Millisecond, time.Minute, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
