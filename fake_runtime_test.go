package edge

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// fakeLoader hands out an in-process runtime that runs jobs one at a time
// on the entry point goroutine.
type fakeLoader struct {
	loads  atomic.Int32
	starts atomic.Int32
	err    error
	delay  time.Duration
	entry  func(argv []string, host Host) int

	mu   sync.Mutex
	rt   *fakeRuntime
	argv []string
}

func (l *fakeLoader) Load(cfg Config, log *zap.Logger) (EntryPoint, error) {
	l.loads.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return func(argv []string, host Host) int {
		l.starts.Add(1)
		l.mu.Lock()
		l.argv = argv
		l.mu.Unlock()
		if l.entry != nil {
			return l.entry(argv, host)
		}

		time.Sleep(l.delay)
		rt := newFakeRuntime()
		l.mu.Lock()
		l.rt = rt
		l.mu.Unlock()
		if err := host.Initialize(rt); err != nil {
			return 2
		}
		return rt.run()
	}, nil
}

func (l *fakeLoader) runtime() *fakeRuntime {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rt
}

type fakeRuntime struct {
	jobs     chan func()
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Int32
	overlap  atomic.Bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{jobs: make(chan func(), 128), stop: make(chan struct{})}
}

func (r *fakeRuntime) run() int {
	for {
		select {
		case job := <-r.jobs:
			if r.running.Add(1) > 1 {
				r.overlap.Store(true)
			}
			job()
			r.running.Add(-1)
		case <-r.stop:
			return 0
		}
	}
}

func (r *fakeRuntime) submit(job func()) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	select {
	case r.jobs <- job:
		return true
	case <-r.stop:
		return false
	}
}

// Compile understands a handful of canned sources.
func (r *fakeRuntime) Compile(source string, done func(Callable, error)) {
	ok := r.submit(func() {
		switch strings.TrimSpace(source) {
		case "":
			done(nil, errors.New("SyntaxError: empty source"))
		case "identity":
			done(&fakeFunc{rt: r, body: func(in interface{}) (interface{}, error) { return in, nil }}, nil)
		case "double":
			done(&fakeFunc{rt: r, body: func(in interface{}) (interface{}, error) { return in.(int) * 2, nil }}, nil)
		case "fail":
			done(&fakeFunc{rt: r, body: func(in interface{}) (interface{}, error) { return nil, fmt.Errorf("boom: %v", in) }}, nil)
		case "hang":
			done(&fakeFunc{rt: r, hang: true}, nil)
		default:
			done(nil, fmt.Errorf("SyntaxError: unexpected token in %q", source))
		}
	})
	if !ok {
		done(nil, ErrClosed)
	}
}

func (r *fakeRuntime) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

type fakeFunc struct {
	rt   *fakeRuntime
	body func(interface{}) (interface{}, error)
	hang bool
}

func (f *fakeFunc) Call(input interface{}, done func(interface{}, error)) {
	ok := f.rt.submit(func() {
		if f.hang {
			return
		}
		done(f.body(input))
	})
	if !ok {
		done(nil, ErrClosed)
	}
}

func newFakeBridge(l *fakeLoader) *Bridge {
	return New(WithConfig(Config{BaseDir: "/opt/app"}), WithLoader(l))
}

func (b *Bridge) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
