// Package runctx implements the per-run data exchange channel between
// tasks. Each run owns a fresh Context; values are keyed by the producing
// task's id plus a key chosen by the producer, and are visible to any task
// declared downstream of the producer.
package runctx

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateKey is returned when a producer publishes the same key twice.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrKeyNotFound is returned when reading a key the producer never published.
	ErrKeyNotFound = errors.New("key not found")
)

// Context is the per-run key/value store. It is safe for concurrent use by
// multiple task actions.
type Context struct {
	mu     sync.RWMutex
	values map[string]map[string]any
}

// New returns an empty Context for a fresh run.
func New() *Context {
	return &Context{values: make(map[string]map[string]any)}
}

// Publish stores value under (taskID, key). Each key may be published at
// most once per task; re-publishing returns ErrDuplicateKey.
func (c *Context) Publish(taskID, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byKey, ok := c.values[taskID]
	if !ok {
		byKey = make(map[string]any)
		c.values[taskID] = byKey
	}
	if _, exists := byKey[key]; exists {
		return fmt.Errorf("%w: task %q already published %q", ErrDuplicateKey, taskID, key)
	}
	byKey[key] = value
	return nil
}

// Read returns the value published by taskID under key, or ErrKeyNotFound
// if the producer never ran or never published it.
func (c *Context) Read(taskID, key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byKey, ok := c.values[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: no values published by task %q", ErrKeyNotFound, taskID)
	}
	value, ok := byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: task %q has no key %q", ErrKeyNotFound, taskID, key)
	}
	return value, nil
}

// ReadString is a convenience wrapper for collaborators exchanging paths
// and captured command output. It fails if the value is not a string.
func (c *Context) ReadString(taskID, key string) (string, error) {
	value, err := c.Read(taskID, key)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value %q of task %q is %T, not string", key, taskID, value)
	}
	return s, nil
}
