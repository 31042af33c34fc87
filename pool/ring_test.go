// File: pool/ring_test.go
// License: Apache-2.0

package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRingBufferOrder(t *testing.T) {
	r := NewRingBuffer[int](8)
	for i := 0; i < 8; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if r.Enqueue(99) {
		t.Fatal("enqueue into full ring must fail")
	}
	for i := 0; i < 8; i++ {
		v, ok := r.Dequeue()
		if !ok || v != i {
			t.Fatalf("dequeue %d: got %d ok=%v", i, v, ok)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Fatal("dequeue from empty ring must fail")
	}
}

func TestRingBufferRoundsToPowerOfTwo(t *testing.T) {
	r := NewRingBuffer[int](5)
	if r.Cap() != 8 {
		t.Fatalf("cap = %d, want 8", r.Cap())
	}
}

func TestRingBufferConcurrentProducersConsumers(t *testing.T) {
	const (
		producers = 4
		perProd   = 10000
	)
	r := NewRingBuffer[int](1024)
	var wg sync.WaitGroup
	var consumed atomic.Int64

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				for !r.Enqueue(i) {
					runtime.Gosched()
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for consumed.Load() < producers*perProd {
			if _, ok := r.Dequeue(); ok {
				consumed.Add(1)
			} else {
				runtime.Gosched()
			}
		}
		close(done)
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("consumed %d of %d", consumed.Load(), producers*perProd)
	}
}
