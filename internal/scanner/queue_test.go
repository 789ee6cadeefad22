package scanner

import "testing"

func TestQueuePriorityThenSequenceOrder(t *testing.T) {
	q := NewQueue()
	q.Push(5, ActionScan, Target{Ino: 5})
	q.Push(1, ActionScan, Target{Ino: 1})
	q.Push(1, ActionCheck, Target{Ino: 1, Name: "second"})
	q.Push(3, ActionScan, Target{Ino: 3})

	wantOrder := []uint64{1, 1, 3, 5}
	for i, want := range wantOrder {
		req, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue empty early", i)
		}
		if req.Priority != want {
			t.Fatalf("pop %d: priority = %d, want %d", i, req.Priority, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue after draining all pushes")
	}
}

func TestQueueTiesBreakBySequence(t *testing.T) {
	q := NewQueue()
	q.Push(1, ActionScan, Target{Name: "a"})
	q.Push(1, ActionScan, Target{Name: "b"})
	q.Push(1, ActionScan, Target{Name: "c"})

	for _, want := range []string{"a", "b", "c"} {
		req, ok := q.Pop()
		if !ok || req.Target.Name != want {
			t.Fatalf("got %+v, want Name=%s", req, want)
		}
	}
}

func TestQueueLenTracksPushPop(t *testing.T) {
	q := NewQueue()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	q.Push(1, ActionScan, Target{})
	q.Push(2, ActionScan, Target{})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}
