package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrWriterClosed = errors.New("background writer closed")

// Task is one queued background persist. Done is closed after the persist
// and its completion hook have run.
type Task struct {
	key     string
	persist func(context.Context) error
	onDone  func(error)
	done    chan struct{}
	err     error
}

func NewTask(key string, persist func(context.Context) error, onDone func(error)) *Task {
	return &Task{
		key:     key,
		persist: persist,
		onDone:  onDone,
		done:    make(chan struct{}),
	}
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Err is only meaningful once Done is closed.
func (t *Task) Err() error { return t.err }

// Wait blocks until the task finished or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	if t.onDone != nil {
		t.onDone(err)
	}
	close(t.done)
}

// Writer runs queued persists on a fixed pool of workers.
type Writer struct {
	log     logrus.FieldLogger
	queue   chan *Task
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewWriter(log logrus.FieldLogger, workers, queueSize int, timeout time.Duration) *Writer {
	if workers < 1 {
		workers = 1
	}
	w := &Writer{
		log:     log,
		queue:   make(chan *Task, queueSize),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.workerLoop(i)
	}
	return w
}

func (w *Writer) Enqueue(ctx context.Context, t *Task) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		t.finish(ErrWriterClosed)
		return ErrWriterClosed
	}
	select {
	case w.queue <- t:
		return nil
	case <-ctx.Done():
		t.finish(ctx.Err())
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) workerLoop(id int) {
	defer w.wg.Done()
	for task := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := task.persist(ctx)
		cancel()

		if err != nil {
			w.log.WithFields(logrus.Fields{"worker": id, "key": task.key}).WithError(err).
				Error("background persist failed, cache entry invalidated")
		} else {
			w.log.WithFields(logrus.Fields{"worker": id, "key": task.key}).Debug("background persist done")
		}
		task.finish(err)
	}
}
