// File: executor/executor_test.go
// License: Apache-2.0

package executor

import (
	"sync"
	"testing"
	"time"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	e := New(4)
	defer e.Close()

	const tasks = 500
	var wg sync.WaitGroup
	wg.Add(tasks)
	for i := 0; i < tasks; i++ {
		if err := e.Submit(func() { wg.Done() }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not all run")
	}
}

func TestSubmitSaturatedReportsBusy(t *testing.T) {
	e := New(1)
	defer e.Close()

	// Park the single worker so nothing drains.
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	if err := e.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started

	// Fill the local ring and the global channel; the first failure must
	// report saturation, not shutdown.
	for i := 0; i < localQueueSize+cap(e.globalQueue)+16; i++ {
		if err := e.Submit(func() {}); err != nil {
			if err != ErrExecutorBusy {
				t.Fatalf("saturated submit: %v, want ErrExecutorBusy", err)
			}
			return
		}
	}
	t.Fatal("submit never saturated")
}

func TestSubmitAfterCloseFails(t *testing.T) {
	e := New(1)
	e.Close()
	if err := e.Submit(func() {}); err != ErrExecutorClosed {
		t.Fatalf("submit after close: %v", err)
	}
}

func TestWorkerSurvivesPanickingTask(t *testing.T) {
	e := New(1)
	defer e.Close()

	_ = e.Submit(func() { panic("boom") })

	ran := make(chan struct{})
	// The same worker must still be able to run subsequent tasks.
	deadline := time.After(5 * time.Second)
	for {
		if err := e.Submit(func() { close(ran) }); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case <-ran:
	case <-deadline:
		t.Fatal("worker did not survive panic")
	}
}
