package edge

import (
	"sync"

	"github.com/google/uuid"
)

// task is a pending compile or invocation. It completes exactly once.
type task struct {
	id    uuid.UUID
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

func newTask() *task {
	return &task{id: uuid.New(), done: make(chan struct{})}
}

// complete records the outcome. Later completions are ignored.
func (t *task) complete(v interface{}, err error) bool {
	won := false
	t.once.Do(func() {
		t.value, t.err = v, err
		won = true
		close(t.done)
	})
	return won
}
