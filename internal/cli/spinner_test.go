package cli

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSpinnerSilentWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(context.Background(), &buf, "Fetching gem metadata...")
	s.start()
	s.setMessage("Resolving with locally available gems...")
	time.Sleep(3 * spinnerInterval)
	s.stop()

	if buf.Len() != 0 {
		t.Errorf("spinner drew to a non-terminal writer: %q", buf.String())
	}
	if s.interrupted() {
		t.Error("a stopped spinner is not interrupted")
	}
}

func TestSpinnerInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, &bytes.Buffer{}, "Fetching gem metadata...")
	s.start()
	cancel()
	s.stop()

	if !s.interrupted() {
		t.Error("cancelling the parent context should interrupt the spinner")
	}
}

func TestSpinnerStopTwiceAndUnstarted(t *testing.T) {
	s := newSpinner(context.Background(), &bytes.Buffer{}, "Fetching gems...")
	s.start()
	s.stop()
	s.stop()

	idle := newSpinner(context.Background(), &bytes.Buffer{}, "never started")
	done := make(chan struct{})
	go func() {
		idle.stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop blocked on a spinner that never started")
	}
}
