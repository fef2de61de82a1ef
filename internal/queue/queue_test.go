package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

func TestEnqueueExecutesInOrder(t *testing.T) {
	q := New(64, nil)
	defer q.Close()

	const n = 50
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)

	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		if err := q.Enqueue(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("execution order[%d] = %d; want %d", i, got, i)
		}
	}
}

func TestConcurrentEnqueueSerializes(t *testing.T) {
	q := New(256, nil)
	defer q.Close()

	// Many goroutines enqueue concurrently; inside each task a shared
	// counter is read and written without synchronization. The race
	// detector fails this test if tasks ever overlap.
	const n = 100
	var (
		counter int
		wg      sync.WaitGroup
	)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			_ = q.Enqueue(func() {
				counter++
				wg.Done()
			})
		}()
	}
	wg.Wait()

	if counter != n {
		t.Errorf("counter = %d; want %d", counter, n)
	}
}

func TestFailingTaskDoesNotBlockChain(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	results := make(chan string, 2)

	if err := q.Enqueue(func() {
		// A task whose work fails simply records the failure.
		results <- "failed"
	}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(func() {
		results <- "ok"
	}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if got := <-results; got != "failed" {
		t.Errorf("first result = %s; want failed", got)
	}
	if got := <-results; got != "ok" {
		t.Errorf("second result = %s; want ok", got)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(8, nil)
	q.Close()

	err := q.Enqueue(func() {})
	if !errors.Is(err, x402.ErrQueueClosed) {
		t.Errorf("Enqueue() after Close error = %v; want ErrQueueClosed", err)
	}
}

func TestCloseDrainsAcceptedTasks(t *testing.T) {
	q := New(8, nil)

	var executed int
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(func() { executed++ }); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	q.Close()

	if executed != 5 {
		t.Errorf("executed = %d; want 5", executed)
	}
}

func TestDepth(t *testing.T) {
	q := New(8, nil)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})

	_ = q.Enqueue(func() {
		close(started)
		<-release
	})
	<-started
	_ = q.Enqueue(func() {})

	if d := q.Depth(); d != 2 {
		t.Errorf("Depth() = %d; want 2 (one in flight, one queued)", d)
	}
	close(release)
}
