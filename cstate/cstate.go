// Package cstate runs state machines where every state computes its
// successor. A nil successor ends the machine.
package cstate

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/james-lawrence/kad/internal/errorsx"
)

const errHalted = errorsx.String("halted")

type logger interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

type Shared struct {
	done context.CancelCauseFunc
	log  logger
}

type T interface {
	Update(context.Context, *Shared) T
}

// Idle waits for the duration, a signal or the end of the machine before
// moving on to next. A non-positive duration only waits for a signal.
func Idle(next T, d time.Duration, signal <-chan struct{}) idle {
	return idle{next: next, d: d, signal: signal}
}

type idle struct {
	next   T
	d      time.Duration
	signal <-chan struct{}
}

func (t idle) Update(ctx context.Context, c *Shared) T {
	var timeout <-chan time.Time
	if t.d > 0 {
		tt := time.NewTimer(t.d)
		defer tt.Stop()
		timeout = tt.C
	}

	select {
	case <-t.signal:
	case <-timeout:
	case <-ctx.Done():
	}

	return t.next
}

func (t idle) String() string {
	return fmt.Sprintf("%T - %s - idle %s", t.next, t.next, t.d)
}

func Failure(cause error) failed {
	return failed{cause: cause}
}

type failed struct {
	cause error
}

func (t failed) Update(ctx context.Context, c *Shared) T {
	c.done(t.cause)
	return nil
}

func (t failed) String() string {
	return fmt.Sprintf("%T - %s", t, t.cause)
}

// Warning logs the cause, if any, and continues with next.
func Warning(next T, cause error) T {
	if cause == nil {
		return next
	}

	return warning{next: next, cause: cause}
}

type warning struct {
	cause error
	next  T
}

func (t warning) Update(ctx context.Context, c *Shared) T {
	c.log.Println("[warning]", t.cause)
	return t.next
}

func (t warning) String() string {
	return fmt.Sprintf("%T - %T", t, t.cause)
}

func Halt() halt {
	return halt{}
}

type halt struct{}

func (t halt) Update(ctx context.Context, c *Shared) T {
	c.done(errHalted)
	return nil
}

func (t halt) String() string {
	return "halt"
}

func Fn(fn fn) fn {
	return fn
}

type fn func(context.Context, *Shared) T

func (t fn) Update(ctx context.Context, s *Shared) T {
	return t(ctx, s)
}

func (t fn) String() string {
	pc := reflect.ValueOf(t).Pointer()
	info := runtime.FuncForPC(pc)
	fname, line := info.FileLine(pc)
	return fmt.Sprintf("%s:%d", fname, line)
}

// Run drives the machine until a state returns nil or the context is done.
func Run(ctx context.Context, s T, l logger) error {
	ctx, cancelled := context.WithCancelCause(ctx)
	defer cancelled(nil)

	var (
		m = Shared{
			done: cancelled,
			log:  l,
		}
	)

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		default:
			l.Printf("%s - %T\n", s, s)
			s = s.Update(ctx, &m)
		}

		if s == nil {
			return errorsx.Ignore(context.Cause(ctx), errHalted)
		}
	}
}
