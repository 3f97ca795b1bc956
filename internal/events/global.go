package events

import "sync"

var (
	globalBus EventBus
	globalMu  sync.RWMutex
)

// SetGlobalEventBus sets the process-wide event bus instance.
func SetGlobalEventBus(bus EventBus) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalBus = bus
}

// GetGlobalEventBus returns the process-wide event bus instance, or nil if
// one has not been set.
func GetGlobalEventBus() EventBus {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalBus
}
