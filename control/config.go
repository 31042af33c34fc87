// File: control/config.go
// Package control is the engine's configuration and metrics plane.
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration with defaults, validation and reload listeners.

package control

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Config carries the tunables of the engine.
type Config struct {
	// Loops is the number of event loops; 0 means one per CPU.
	Loops int

	// PinLoops pins each loop goroutine's thread to a CPU core.
	PinLoops bool

	// EventBatch is the wait-call event slice size per loop.
	EventBatch int

	// Tick bounds every wait call so housekeeping and submitted tasks
	// run even with no I/O activity.
	Tick time.Duration

	// ReadBufferSize is the per-read pooled buffer request.
	ReadBufferSize int

	// PoolRetainPerClass bounds warm buffers kept per size class.
	PoolRetainPerClass int

	// PoolMaxOutstanding caps checked-out buffers, 0 = unlimited.
	PoolMaxOutstanding int

	// NativeBuffers selects mmap-backed buffer storage for the pool.
	NativeBuffers bool

	// AcceptBacklog is the listen(2) backlog for served listeners.
	AcceptBacklog int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Loops:              runtime.NumCPU(),
		EventBatch:         128,
		Tick:               100 * time.Millisecond,
		ReadBufferSize:     32 * 1024,
		PoolRetainPerClass: 256,
		AcceptBacklog:      128,
	}
}

// Validate checks tunables and fills zero values from defaults.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.Loops < 0 {
		return fmt.Errorf("control: negative loop count %d", c.Loops)
	}
	if c.Loops == 0 {
		c.Loops = d.Loops
	}
	if c.EventBatch <= 0 {
		c.EventBatch = d.EventBatch
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.PoolRetainPerClass <= 0 {
		c.PoolRetainPerClass = d.PoolRetainPerClass
	}
	if c.PoolMaxOutstanding < 0 {
		return fmt.Errorf("control: negative pool cap %d", c.PoolMaxOutstanding)
	}
	if c.AcceptBacklog <= 0 {
		c.AcceptBacklog = d.AcceptBacklog
	}
	return nil
}

// ConfigStore is a dynamic key/value map with atomic snapshot and listener
// support, for runtime-adjustable knobs.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetConfig merges new values and dispatches reload listeners.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
