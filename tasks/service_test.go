package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete")
	}
}

func TestRequestCompletes(t *testing.T) {
	s := NewService("test", 2)
	defer s.Close()

	r := NewRequest("answer", func(ctx context.Context) int { return 42 })
	if r.Completed() {
		t.Fatal("completed before running")
	}
	if err := s.Add(r, 0); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r.Done())

	if !r.Completed() {
		t.Error("Done closed but Completed is false")
	}
	if r.Result() != 42 {
		t.Errorf("result %d, want 42", r.Result())
	}
	if s.Submitted() != 1 {
		t.Errorf("submitted %d, want 1", s.Submitted())
	}
}

func TestRequestAddedTwice(t *testing.T) {
	s := NewService("test", 1)
	defer s.Close()

	r := NewRequest("once", func(ctx context.Context) int { return 1 })
	if err := s.Add(r, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(r, 0); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("second add: got %v, want ErrAlreadyQueued", err)
	}
	waitDone(t, r.Done())
}

func TestPanickingRequestCompletes(t *testing.T) {
	s := NewService("test", 1)
	defer s.Close()

	r := NewRequest("boom", func(ctx context.Context) *int { panic("boom") })
	if err := s.Add(r, 0); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r.Done())
	if r.Result() != nil {
		t.Errorf("panicked request result %v, want nil", r.Result())
	}
}

func TestPriorityOrder(t *testing.T) {
	s := NewService("test", 1)
	defer s.Close()

	// hold the only worker so the rest queue up
	gate := make(chan struct{})
	blocker := NewRequest("blocker", func(ctx context.Context) int {
		<-gate
		return 0
	})
	if err := s.Add(blocker, 100); err != nil {
		t.Fatal(err)
	}
	for s.Pending() != 0 {
		time.Sleep(time.Millisecond)
	}

	var mu sync.Mutex
	var order []string
	record := func(name string) *Request[int] {
		return NewRequest(name, func(ctx context.Context) int {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return 0
		})
	}
	low := record("low")
	high := record("high")
	mid := record("mid")
	s.Add(low, 1)
	s.Add(high, 10)
	s.Add(mid, 5)

	close(gate)
	waitDone(t, low.Done())
	waitDone(t, mid.Done())
	waitDone(t, high.Done())

	want := []string{"high", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}
}

func TestAddAfterClose(t *testing.T) {
	s := NewService("test", 1)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	r := NewRequest("late", func(ctx context.Context) int { return 0 })
	if err := s.Add(r, 0); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("got %v, want ErrServiceClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestInline(t *testing.T) {
	r := NewRequest("inline", func(ctx context.Context) string { return "ok" })
	if err := (Inline{}).Add(r, 0); err != nil {
		t.Fatal(err)
	}
	if !r.Completed() || r.Result() != "ok" {
		t.Errorf("inline request not completed: %v %q", r.Completed(), r.Result())
	}
}
