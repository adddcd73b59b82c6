package scheduler

import (
	"context"
	"errors"
	"sync"
)

// ErrWorkerStopped is returned when submitting to a stopped worker
var ErrWorkerStopped = errors.New("run worker stopped")

// ErrWorkerNotStarted is returned when submitting before Start
var ErrWorkerNotStarted = errors.New("run worker not started")

// Task is one unit of background work
type Task func(ctx context.Context)

// RunWorker executes submitted tasks one at a time on a single goroutine.
// Submit never blocks: the coordinator guarantees at most one task is
// outstanding, so a one-slot queue is enough.
type RunWorker struct {
	tasks    chan Task
	stopChan chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	isRunning bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRunWorker creates a stopped worker
func NewRunWorker() *RunWorker {
	return &RunWorker{
		tasks:    make(chan Task, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start starts the worker loop; tasks receive a context derived from parent
func (w *RunWorker) Start(parent context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning || w.stopped {
		logger.Debugf("RunWorker: already started")
		return
	}
	w.ctx, w.cancel = context.WithCancel(parent)
	w.isRunning = true
	logger.Infof("RunWorker: started")

	go w.run()
}

// Submit queues a task without blocking
func (w *RunWorker) Submit(task Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	if !w.isRunning {
		return ErrWorkerNotStarted
	}
	select {
	case w.tasks <- task:
		return nil
	default:
		return errors.New("run worker queue full")
	}
}

// Stop cancels the in-flight task and waits for the loop to exit
func (w *RunWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	wasRunning := w.isRunning
	w.isRunning = false
	if w.cancel != nil {
		w.cancel()
	}
	close(w.stopChan)
	w.mu.Unlock()

	logger.Infof("RunWorker: stopping...")
	if wasRunning {
		<-w.done
	}
}

// run is the main worker loop
func (w *RunWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopChan:
			w.drain(w.ctx)
			logger.Infof("RunWorker: stopped")
			return
		case task := <-w.tasks:
			task(w.ctx)
		}
	}
}

// drain runs whatever is still queued with the already cancelled context
func (w *RunWorker) drain(ctx context.Context) {
	for {
		select {
		case task := <-w.tasks:
			task(ctx)
		default:
			return
		}
	}
}
