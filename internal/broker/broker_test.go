package broker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSendAndReceive(t *testing.T) {
	c := NewConn("c1", 2)

	if err := c.Send([]byte("data: 1\n\n")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case f := <-c.Frames():
		if string(f) != "data: 1\n\n" {
			t.Errorf("frame = %q", f)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected frame on channel")
	}
}

func TestSendDoesNotBlockWhenBufferFull(t *testing.T) {
	c := NewConn("slow", 1)

	if err := c.Send([]byte("a")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Send([]byte("b")) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrBackpressure) {
			t.Errorf("Send() on full buffer = %v, want ErrBackpressure", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Send blocked on a full buffer")
	}
}

func TestSendAfterClose(t *testing.T) {
	c := NewConn("gone", 4)
	c.Close()

	if err := c.Send([]byte("x")); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send() after Close = %v, want ErrConnClosed", err)
	}
	if !c.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestCloseOnlyOnce(t *testing.T) {
	c := NewConn("c", 1)
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Close() {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firsts != 1 {
		t.Errorf("Close reported first close %d times, want 1", firsts)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(map[string]bool{"isPlaying": false})
	if err != nil {
		t.Fatal(err)
	}
	if string(frame) != "data: {\"isPlaying\":false}\n\n" {
		t.Errorf("frame = %q", frame)
	}

	if _, err := EncodeFrame(make(chan int)); err == nil {
		t.Error("expected error for unencodable payload")
	}
}
