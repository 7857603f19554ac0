package events

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrDispatchQueueFull = errors.New("event dispatch queue is full")
	ErrDispatcherClosed  = errors.New("event dispatcher is closed")
)

type dispatchJob struct {
	event   *Event
	handler EventHandler
}

// Dispatcher runs wrapped handlers on a fixed pool of goroutines so slow
// side channels (SMS, Telegram, the broker) never hold up the publisher.
// A nil *Dispatcher leaves handlers synchronous.
type Dispatcher struct {
	jobs    chan dispatchJob
	onError ErrorHook
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers, queueSize int, onError ErrorHook) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &Dispatcher{jobs: make(chan dispatchJob, queueSize), onError: onError}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.jobs {
		if err := job.handler(job.event); err != nil && d.onError != nil {
			d.onError(job.event, err)
		}
	}
}

// Async wraps h so it is queued instead of run in place. The wrapper fails
// with ErrDispatchQueueFull rather than block when every worker is busy.
func (d *Dispatcher) Async(h EventHandler) EventHandler {
	if d == nil {
		return h
	}
	return func(event *Event) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return ErrDispatcherClosed
		}
		select {
		case d.jobs <- dispatchJob{event: event, handler: h}:
			return nil
		default:
			return ErrDispatchQueueFull
		}
	}
}

// Close stops accepting events and waits for queued ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
