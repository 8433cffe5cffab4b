package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// --- Queue Tests ---

func TestQueue_FIFO(t *testing.T) {
	q := New(3)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	for _, id := range []uuid.UUID{a, b, c} {
		if err := q.Push(id); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	if head, ok := q.Peek(); !ok || head != a {
		t.Errorf("expected head %s, got %s", a, head)
	}
	if q.Len() != 3 {
		t.Error("Peek must not remove the head")
	}

	if got := q.Position(b); got != 2 {
		t.Errorf("expected position 2, got %d", got)
	}

	for _, want := range []uuid.UUID{a, b, c} {
		got, ok := q.Peek()
		if !ok || got != want {
			t.Fatalf("expected %s, got %s (ok=%v)", want, got, ok)
		}
		if !q.Remove(got) {
			t.Fatalf("remove %s failed", got)
		}
	}
	if _, ok := q.Peek(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_Full(t *testing.T) {
	q := New(1)
	if err := q.Push(uuid.New()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.Push(uuid.New()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("expected len 1, got %d", q.Len())
	}
}

func TestQueue_Duplicate(t *testing.T) {
	q := New(5)
	id := uuid.New()
	q.Push(id)
	if err := q.Push(id); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestQueue_DefaultCapacity(t *testing.T) {
	if got := New(0).Capacity(); got != defaultCapacity {
		t.Errorf("expected capacity %d, got %d", defaultCapacity, got)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := New(3)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	q.Push(a)
	q.Push(b)
	q.Push(c)

	if !q.Remove(b) {
		t.Fatal("expected b to be removed")
	}
	if q.Remove(b) {
		t.Error("second remove should report false")
	}
	if q.Position(b) != 0 {
		t.Error("removed task should have position 0")
	}
	if q.Position(c) != 2 {
		t.Errorf("expected c at position 2, got %d", q.Position(c))
	}

	snap := q.Snapshot()
	snap[0] = uuid.Nil
	if q.Position(a) != 1 {
		t.Error("snapshot mutation leaked into queue")
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New(10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Push(uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrQueueFull):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 10 || rejected != 40 {
		t.Errorf("expected 10 accepted and 40 rejected, got %d and %d", accepted, rejected)
	}
	if q.Len() != 10 {
		t.Errorf("expected len 10, got %d", q.Len())
	}
}
