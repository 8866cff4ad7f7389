package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"forkChan/errs"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
	if len(got) != 100 {
		t.Fatalf("%d tasks ran, want 100", len(got))
	}
}

func TestLoopSingleGoroutine(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	// Unsynchronized on purpose: the race detector flags it unless every
	// task runs on the same goroutine.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	var got int
	if err := l.Call(context.Background(), func() { got = counter }); err != nil {
		t.Fatal(err)
	}
	if got != 800 {
		t.Fatalf("counter = %d, want 800", got)
	}
}

func TestLoopClose(t *testing.T) {
	l := NewLoop()
	ran := make(chan struct{})
	l.Post(func() {
		time.Sleep(10 * time.Millisecond)
		close(ran)
	})
	l.Close()
	select {
	case <-ran:
	default:
		t.Fatal("queued task dropped on close")
	}
	if l.Post(func() {}) {
		t.Fatal("closed loop accepted work")
	}
	if err := l.Call(context.Background(), func() {}); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestLoopCallContext(t *testing.T) {
	l := NewLoop()
	defer l.Close()
	block := make(chan struct{})
	l.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Call(ctx, func() {}); !errs.Is(err, errs.EUNAVAILABLE) {
		t.Fatalf("got %v, want unavailable", err)
	}
}

func TestPending(t *testing.T) {
	p := newPending()
	if p.Err() != nil {
		t.Fatal("unresolved pending reports an error")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errs.Is(err, errs.EUNAVAILABLE) {
		t.Fatalf("got %v, want unavailable", err)
	}
	want := errs.Errorf(errs.EINVALID, "nope")
	p.resolve(want)
	p.resolve(nil)
	if err := p.Wait(context.Background()); err != want {
		t.Fatalf("got %v, want first resolution", err)
	}

	a, b := newPending(), newPending()
	j := join(a, b)
	b.resolve(want)
	a.resolve(nil)
	if err := j.Wait(context.Background()); err != want {
		t.Fatalf("join: got %v, want %v", err, want)
	}
}
