package bridge

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// delivery is a fetched chunk waiting for its paced write.
type delivery struct {
	c    *completion
	data []byte
}

// deliveryWorker writes paced deliveries on a single dedicated goroutine.
//
// Each delivery is deferred with the scheduler, so a pending delay never
// occupies the worker; only deliveries whose delay has elapsed are queued.
// Deliveries therefore complete in due-time order regardless of the order
// in which they were scheduled.
type deliveryWorker struct {
	sched   Scheduler
	deliver func(*delivery)
	abort   func(*delivery, error)

	mu      sync.Mutex
	closed  bool
	queue   deque.Deque[*delivery]
	pending map[*delivery]Timer

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newDeliveryWorker(sched Scheduler, deliver func(*delivery), abort func(*delivery, error)) *deliveryWorker {
	w := &deliveryWorker{
		sched:   sched,
		deliver: deliver,
		abort:   abort,
		pending: make(map[*delivery]Timer),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// schedule defers d by delay. Returns false if the worker is closed.
func (w *deliveryWorker) schedule(d *delivery, delay time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.pending[d] = w.sched.AfterFunc(delay, func() { w.enqueue(d) })
	return true
}

// enqueue hands a due delivery to the worker goroutine.
func (w *deliveryWorker) enqueue(d *delivery) {
	w.mu.Lock()
	delete(w.pending, d)
	if w.closed {
		w.mu.Unlock()
		w.abort(d, ErrLoaderClosed)
		return
	}
	w.queue.PushBack(d)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *deliveryWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if w.closed || w.queue.Len() == 0 {
				w.mu.Unlock()
				break
			}
			d := w.queue.PopFront()
			w.mu.Unlock()
			w.deliver(d)
		}
	}
}

// close stops the worker and aborts every delivery not yet written.
func (w *deliveryWorker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	var aborted []*delivery
	for d, t := range w.pending {
		if t.Stop() {
			aborted = append(aborted, d)
		}
		delete(w.pending, d)
	}
	w.mu.Unlock()

	close(w.stop)
	<-w.done

	w.mu.Lock()
	for w.queue.Len() > 0 {
		aborted = append(aborted, w.queue.PopFront())
	}
	w.mu.Unlock()

	for _, d := range aborted {
		w.abort(d, ErrLoaderClosed)
	}
}
