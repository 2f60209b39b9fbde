package queue

import "testing"

func TestTimedQueueOrdersByTime(t *testing.T) {
	q := NewTimedQueue[string]("events", UnlimitedCapacity, nil, TimedHooks[string]{})
	q.Push("c", 30)
	q.Push("a", 10)
	q.Push("b", 20)

	want := []string{"a", "b", "c"}
	for i, w := range want {
		item, at, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if item != w {
			t.Fatalf("pop %d: got %q want %q (at %.0f)", i, item, w, at)
		}
	}
	if _, _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestTimedQueueFIFOOnTies(t *testing.T) {
	q := NewTimedQueue[int]("ties", UnlimitedCapacity, nil, TimedHooks[int]{})
	for i := 0; i < 50; i++ {
		q.Push(i, 5)
	}
	q.Push(-1, 1)

	first, _, _ := q.Pop()
	if first != -1 {
		t.Fatalf("earlier item should come first, got %d", first)
	}
	for i := 0; i < 50; i++ {
		item, _, ok := q.Pop()
		if !ok || item != i {
			t.Fatalf("tie order broken at %d: got %d", i, item)
		}
	}
}

func TestTimedQueueCapacityAndHooks(t *testing.T) {
	var pushed, popped int
	lastLen := -1
	q := NewTimedQueue[int]("cap", 2, func(length, capacity int) {
		lastLen = length
	}, TimedHooks[int]{
		OnPush: func(item int, at float64) { pushed++ },
		OnPop:  func(item int, at float64) { popped++ },
	})

	if !q.Push(1, 1) || !q.Push(2, 2) {
		t.Fatalf("pushes within capacity failed")
	}
	if q.Push(3, 3) {
		t.Fatalf("push over capacity should fail")
	}
	if lastLen != 2 {
		t.Fatalf("mutate callback saw length %d, want 2", lastLen)
	}
	if _, at, ok := q.Peek(); !ok || at != 1 {
		t.Fatalf("peek mismatch")
	}
	q.Pop()
	if pushed != 2 || popped != 1 {
		t.Fatalf("hook counts pushed=%d popped=%d", pushed, popped)
	}
	if n := q.Clear(); n != 1 || q.Len() != 0 {
		t.Fatalf("clear removed %d, len %d", n, q.Len())
	}
	if lastLen != 0 {
		t.Fatalf("mutate callback not fired on clear")
	}
}
