package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

// AdapterInfo describes a registered store adapter.
type AdapterInfo struct {
	Driver      string `json:"driver" yaml:"driver"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description" yaml:"description"`
}

// OpenOptions carries pool settings common to all adapters.
type OpenOptions struct {
	MaxConnections int32
}

// AdapterRegistration contains info + factory for opening an Executor.
type AdapterRegistration struct {
	Info AdapterInfo
	Open func(ctx context.Context, dsn string, opts OpenOptions) (Executor, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Driver] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by driver.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Driver < result[j].Driver })
	return result
}

// IsRegistered checks if an adapter is available for a driver.
func IsRegistered(driver string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[driver]
	return ok
}

// Open opens an Executor using the adapter registered for driver.
func Open(ctx context.Context, driver, dsn string, opts OpenOptions) (Executor, error) {
	registryMu.RLock()
	reg, ok := registry[driver]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", apperrors.ErrUnknownDriver, driver, driverNames())
	}
	return reg.Open(ctx, dsn, opts)
}

func driverNames() []string {
	var names []string
	for _, info := range RegisteredAdapters() {
		names = append(names, info.Driver)
	}
	return names
}
