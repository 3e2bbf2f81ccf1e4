package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInlineRunsImmediately(t *testing.T) {
	ran := false
	Inline{}.Post(func() { ran = true })
	if !ran {
		t.Fatal("expected task to run inline")
	}
}

func TestRunExecutesInOrderIncludingNestedPosts(t *testing.T) {
	l := New()
	var order []int
	done := make(chan struct{})
	l.Post(func() {
		order = append(order, 1)
		l.Post(func() {
			order = append(order, 3)
			close(done)
		})
	})
	l.Post(func() { order = append(order, 2) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested task did not run")
	}
	want := []int{1, 2, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunSerializesTasksFromManyGoroutines(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Do(ctx, func() { counter++ }); err != nil {
				t.Errorf("Do() error: %v", err)
			}
		}()
	}
	wg.Wait()

	var got int
	if err := l.Do(ctx, func() { got = counter }); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if got != 50 {
		t.Fatalf("counter = %d, want 50", got)
	}

	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := l.Do(context.Background(), func() {}); err != ErrStopped {
		t.Fatalf("Do() after stop = %v, want ErrStopped", err)
	}
}
