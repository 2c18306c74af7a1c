package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_RunsJobs(t *testing.T) {
	p := NewWorkerPool(4, 16, zap.NewNop())
	p.Start()
	defer p.Stop()

	var n atomic.Int32
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 100, n.Load())
}

func TestWorkerPool_SurvivesPanic(t *testing.T) {
	p := NewWorkerPool(1, 1, zap.NewNop())
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from panic")
	}
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	p := NewWorkerPool(1, 0, zap.NewNop())
	// not started: nobody drains the unbuffered queue
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.TrySubmit(func() {}))
}

func TestWorkerPool_StoppedRejects(t *testing.T) {
	p := NewWorkerPool(2, 4, zap.NewNop())
	p.Start()
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolStopped)
	assert.False(t, p.TrySubmit(func() {}))
}
