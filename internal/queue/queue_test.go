package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go q.Run(ctx)
	defer q.Stop()

	var mu sync.Mutex
	var order []string

	for _, id := range []string{"a", "b", "c"} {
		id := id
		if err := q.Enqueue(&Job{ID: id, Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}}); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", id, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-q.Results():
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d to complete", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %d jobs to run, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected FIFO order %v, got %v", want, order)
			break
		}
	}
}

func TestQueue_CancelQueuedJobNeverRuns(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	ran := make(chan struct{}, 1)

	if err := q.Enqueue(&Job{ID: "first", Run: func(ctx context.Context) error {
		<-block
		return nil
	}}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: "second", Run: func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}}); err != nil {
		t.Fatal(err)
	}

	go q.Run(ctx)
	defer q.Stop()

	time.Sleep(50 * time.Millisecond) // let "first" start running
	if !q.Cancel("second") {
		t.Fatalf("expected Cancel to find queued job \"second\"")
	}

	close(block) // let "first" finish

	results := map[string]Result{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-q.Results():
			results[r.JobID] = r
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for results, got so far: %+v", results)
		}
	}
	if r, ok := results["second"]; !ok || !r.Cancelled {
		t.Fatalf("expected cancellation result for \"second\", got %+v", results)
	}
	if r, ok := results["first"]; !ok || r.Cancelled {
		t.Fatalf("expected \"first\" to complete normally, got %+v", results)
	}

	select {
	case <-ran:
		t.Fatal("cancelled job must not run")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestQueue_CancelRunningJobCancelsContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	if err := q.Enqueue(&Job{ID: "long", Run: func(jobCtx context.Context) error {
		close(started)
		<-jobCtx.Done()
		return jobCtx.Err()
	}}); err != nil {
		t.Fatal(err)
	}

	go q.Run(ctx)
	defer q.Stop()

	<-started
	if !q.Cancel("long") {
		t.Fatalf("expected Cancel to find running job \"long\"")
	}

	select {
	case res := <-q.Results():
		if !res.Cancelled {
			t.Errorf("expected running job to report Cancelled=true, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancelled job to report its result")
	}
}

func TestQueue_DuplicateIDRejected(t *testing.T) {
	q := New()
	block := make(chan struct{})
	defer close(block)

	if err := q.Enqueue(&Job{ID: "dup", Run: func(ctx context.Context) error { <-block; return nil }}); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(&Job{ID: "dup", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error enqueueing a duplicate job ID")
	}
}

func TestQueue_StopPreventsFurtherEnqueue(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go q.Run(ctx)
	q.Stop()

	if err := q.Enqueue(&Job{ID: "late", Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error enqueueing after Stop")
	}
}
