// Package eventbus decouples the transport layer from observers such as the
// admin API: connection and session milestones are published as topics.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Bus pairs a synchronous event bus with a bounded asynchronous worker
// pool. Synchronous publishes run handlers inline; asynchronous publishes
// are queued and dropped when the queue is full, so the hot connection path
// never blocks on a slow observer.
type Bus struct {
	syncBus  evbus.Bus
	asyncBus evbus.Bus
	workers  int
	queue    chan asyncEvent
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// New creates a bus with the given number of async workers.
func New(workers int) *Bus {
	if workers <= 0 {
		workers = 4
	}
	b := &Bus{
		syncBus:  evbus.New(),
		asyncBus: evbus.New(),
		workers:  workers,
		queue:    make(chan asyncEvent, 1000),
		stop:     make(chan struct{}),
	}
	b.start()
	return b
}

func (b *Bus) start() {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
}

// Close drains the workers. Queued events that have not been picked up yet
// are discarded.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.stop)
		b.wg.Wait()
	})
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stop:
			return
		case event := <-b.queue:
			func() {
				defer func() {
					// A panicking subscriber must not take the worker down.
					_ = recover()
				}()
				b.asyncBus.Publish(event.topic, event.args...)
			}()
		}
	}
}

// Publish runs the synchronous subscribers for a topic inline.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.syncBus.Publish(topic, args...)
}

// PublishAsync queues an event for the worker pool. When the queue is full
// the event is dropped.
func (b *Bus) PublishAsync(topic string, args ...interface{}) {
	select {
	case b.queue <- asyncEvent{topic: topic, args: args}:
	default:
	}
}

// Subscribe registers a handler run inline on Publish.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.syncBus.Subscribe(topic, fn)
}

// SubscribeAsync registers a handler run by the worker pool on PublishAsync.
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.asyncBus.Subscribe(topic, fn)
}

// Unsubscribe removes a handler from both buses.
func (b *Bus) Unsubscribe(topic string, fn interface{}) {
	_ = b.syncBus.Unsubscribe(topic, fn)
	_ = b.asyncBus.Unsubscribe(topic, fn)
}
