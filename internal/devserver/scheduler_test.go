package devserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerCoalescesRequests(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]string
	)
	started := make(chan struct{})
	release := make(chan struct{})

	s := NewScheduler(context.Background(), func(ctx context.Context, changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		first := len(batches) == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
	})

	s.Request([]string{"src/index.js"})
	<-started

	s.Request([]string{"src/styles.scss"})
	s.Request([]string{"src/README.md", "src/styles.scss"})
	close(release)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]string{
		{"src/index.js"},
		{"src/README.md", "src/styles.scss"},
	}, batches)
}

func TestSchedulerRunsAgainWhenIdle(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	s := NewScheduler(context.Background(), func(ctx context.Context, changed []string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s.Request([]string{"a"})
	s.Wait()
	s.Request([]string{"b"})
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, count)
}

func TestSchedulerSkipsWhenCancelled(t *testing.T) {
	ran := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx, func(ctx context.Context, changed []string) {
		ran <- struct{}{}
	})

	cancel()
	s.Request([]string{"a"})
	s.Wait()

	select {
	case <-ran:
		t.Fatal("rebuild ran after cancellation")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSchedulerCancelStopsQueuedRebuild(t *testing.T) {
	var (
		mu   sync.Mutex
		runs []context.Context
	)
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler(ctx, func(runCtx context.Context, changed []string) {
		mu.Lock()
		runs = append(runs, runCtx)
		mu.Unlock()
		close(started)
		<-runCtx.Done()
	})

	// a full rebuild request starts the loop, a file change queues behind it
	s.Request(nil)
	<-started
	s.Request([]string{"src/index.js"})

	cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked after the scheduler context was cancelled")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, runs, 1)
	require.ErrorIs(t, runs[0].Err(), context.Canceled)
}

func TestSchedulerFullRebuildWins(t *testing.T) {
	var batches [][]string
	started := make(chan struct{})
	release := make(chan struct{})

	s := NewScheduler(context.Background(), func(ctx context.Context, changed []string) {
		batches = append(batches, changed)
		if len(batches) == 1 {
			close(started)
			<-release
		}
	})

	s.Request([]string{"src/index.js"})
	<-started
	s.Request([]string{"src/styles.scss"})
	s.Request(nil)
	close(release)
	s.Wait()

	require.Len(t, batches, 2)
	require.Nil(t, batches[1])
}
