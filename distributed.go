package xmediator

import (
	"errors"
	"sync"
)

// DistributedFactory constructs distributed publishers from a config blob.
type DistributedFactory func(cfg map[string]any) (DistributedPublisher, error)

var (
	distributedRegistryMu sync.RWMutex
	distributedRegistry   = map[string]DistributedFactory{}
)

// RegisterDistributed registers a broker adapter under name. Adapters call
// this from init (see adapter/redisstream).
func RegisterDistributed(name string, factory DistributedFactory) error {
	if name == "" {
		return errors.New("xmediator: distributed publisher name must not be empty")
	}
	if factory == nil {
		return errors.New("xmediator: distributed publisher factory must not be nil")
	}
	distributedRegistryMu.Lock()
	distributedRegistry[name] = factory
	distributedRegistryMu.Unlock()
	return nil
}

// NewDistributed constructs a distributed publisher by name with config.
func NewDistributed(name string, cfg map[string]any) (DistributedPublisher, error) {
	distributedRegistryMu.RLock()
	f, ok := distributedRegistry[name]
	distributedRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownDistributed{name: name}
	}
	return f(cfg)
}

// channelFor derives the broker channel for an event: the routing key when
// set, otherwise the event type's namespace.
func channelFor(e *Event) string {
	if e.Metadata.RoutingKey != "" {
		return e.Metadata.RoutingKey
	}
	return e.Namespace()
}
