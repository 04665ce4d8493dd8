// Package eventbus is the server's internal pub/sub backbone: ASR results,
// backend health-state transitions and interrupt/generation bumps are
// published here and fanned out to logging and metrics subscribers without
// coupling the pipeline stages to those concerns directly.
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

var (
	instance evbus.Bus
	asyncBus *AsyncEventBus
	once     sync.Once
)

// Get returns the process-wide synchronous event bus.
func Get() evbus.Bus {
	once.Do(initGlobal)
	return instance
}

// GetAsync returns the process-wide asynchronous event bus.
func GetAsync() *AsyncEventBus {
	once.Do(initGlobal)
	return asyncBus
}

func initGlobal() {
	instance = New()
	asyncBus = NewAsyncEventBus(10)
	asyncBus.Start()
}

// New creates a standalone synchronous event bus, for tests that don't
// want to share the process-wide singleton.
func New() evbus.Bus {
	return evbus.New()
}

// Publish fires topic synchronously on the global bus.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// PublishAsync enqueues topic for asynchronous delivery on the global bus.
func PublishAsync(topic string, args ...interface{}) {
	GetAsync().PublishAsync(topic, args...)
}

// Subscribe registers fn for topic on the global synchronous bus.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync registers fn for topic on the global asynchronous bus.
func SubscribeAsync(topic string, fn interface{}) error {
	return GetAsync().SubscribeAsync(topic, fn)
}

// Shutdown stops the global asynchronous worker pool.
func Shutdown() {
	if asyncBus != nil {
		asyncBus.Stop()
	}
}
