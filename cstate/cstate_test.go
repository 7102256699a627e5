package cstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type testLogger struct {
	t *testing.T
}

func (tl testLogger) Print(v ...any) {
	tl.t.Log(v...)
}

func (tl testLogger) Printf(format string, v ...any) {
	tl.t.Logf(format, v...)
}

func (tl testLogger) Println(v ...any) {
	tl.t.Log(v...)
}

type captureLogger struct {
	testLogger
	captured []string
}

func (cl *captureLogger) Println(v ...any) {
	cl.captured = append(cl.captured, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
	cl.testLogger.Println(v...)
}

// TestRunHalt verifies that Halt stops the state machine without error.
func TestRunHalt(t *testing.T) {
	var (
		ctx = context.Background()
		s   = Halt()
		l   = testLogger{t}
	)

	err := Run(ctx, s, l)
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

// TestRunFailure verifies that Failure cancels with the given error.
func TestRunFailure(t *testing.T) {
	var (
		expected = errors.New("test failure")
		ctx      = context.Background()
		s        = Failure(expected)
		l        = testLogger{t}
	)

	err := Run(ctx, s, l)
	if !errors.Is(err, expected) {
		t.Errorf("expected error %v, got %v", expected, err)
	}
}

// TestRunWarning verifies that Warning logs the error and proceeds.
func TestRunWarning(t *testing.T) {
	var (
		warnErr  = errors.New("test warning")
		ctx      = context.Background()
		cl       = &captureLogger{testLogger: testLogger{t}}
		s        = Warning(Warning(Halt(), nil), warnErr)
		expected = "[warning] test warning"
	)

	err := Run(ctx, s, cl)
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if len(cl.captured) != 1 || cl.captured[0] != expected {
		t.Errorf("expected captured log %q, got %v", expected, cl.captured)
	}
}

// TestRunFn verifies that Fn executes the function and returns next state.
func TestRunFn(t *testing.T) {
	var (
		ctx   = context.Background()
		l     = testLogger{t}
		count int
		loop  T
	)

	loop = Fn(func(context.Context, *Shared) T {
		if count++; count == 3 {
			return Halt()
		}
		return loop
	})

	err := Run(ctx, loop, l)
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 updates, got %d", count)
	}
}

// TestIdleTimeout verifies that idle times out and proceeds.
func TestIdleTimeout(t *testing.T) {
	var (
		ctx   = context.Background()
		d     = 50 * time.Millisecond
		s     = Idle(Halt(), d, nil)
		l     = testLogger{t}
		start = time.Now()
	)

	err := Run(ctx, s, l)
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < d {
		t.Errorf("expected elapsed >= %v, got %v", d, elapsed)
	}
}

// TestIdleSignal verifies that signaling wakes the idler.
func TestIdleSignal(t *testing.T) {
	var (
		ctx    = context.Background()
		signal = make(chan struct{}, 1)
		s      = Idle(Halt(), time.Hour, signal)
		l      = testLogger{t}
		done   = make(chan error)
	)

	go func() {
		done <- Run(ctx, s, l)
	}()

	signal <- struct{}{}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("idle state ignored the signal")
	}
}

// TestIdleCancel verifies that context cancel wakes the idler.
func TestIdleCancel(t *testing.T) {
	var (
		ctx, cxl = context.WithCancel(context.Background())
		s        = Idle(Halt(), 0, nil)
		l        = testLogger{t}
		done     = make(chan error)
	)

	go func() {
		done <- Run(ctx, s, l)
	}()

	time.Sleep(10 * time.Millisecond)
	cxl()
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
