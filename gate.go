package edge

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness signal. The first call to Ready or Fail
// decides the outcome; every waiter, current or future, observes it.
type Gate struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewGate returns an unsignaled gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Ready opens the gate successfully. It reports whether this call decided
// the outcome.
func (g *Gate) Ready() bool {
	return g.signal(nil)
}

// Fail opens the gate with err. A nil err is recorded as ErrRuntimeInitFailed
// so failure is never mistaken for readiness.
func (g *Gate) Fail(err error) bool {
	if err == nil {
		err = ErrRuntimeInitFailed
	}
	return g.signal(err)
}

func (g *Gate) signal(err error) bool {
	won := false
	g.once.Do(func() {
		g.err = err
		won = true
		close(g.done)
	})
	return won
}

// Done is closed once the gate has an outcome.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Err returns the failure, or nil if the gate is ready or still pending.
func (g *Gate) Err() error {
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}

// Wait blocks until the gate is signaled and returns the failure, if any.
func (g *Gate) Wait() error {
	<-g.done
	return g.err
}

// WaitContext is Wait bounded by ctx.
func (g *Gate) WaitContext(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
