package avpipe

import (
	"reflect"
	"sync"
)

type contextEntry struct {
	key     reflect.Type
	value   any
	cleanup func()
}

// A Context is a process-wide typed registry shared across an element
// tree: a thread-safe mapping from type identity to an object plus an
// optional cleanup. It is created with the pipeline and destroyed last;
// cleanups run in reverse insertion order.
type Context struct {
	mu      sync.RWMutex
	entries map[reflect.Type]*contextEntry
	order   []*contextEntry
	closed  bool
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{entries: make(map[reflect.Type]*contextEntry)}
}

func (c *Context) add(key reflect.Type, value any, cleanup func()) bool {
	if value == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, exists := c.entries[key]; exists {
		return false
	}
	entry := &contextEntry{key: key, value: value, cleanup: cleanup}
	c.entries[key] = entry
	c.order = append(c.order, entry)
	return true
}

func (c *Context) query(key reflect.Type) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

func (c *Context) remove(key reflect.Type, value any) bool {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok || entry.value != value {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if entry.cleanup != nil {
		entry.cleanup()
	}
	return true
}

// Close runs the cleanup callbacks in reverse insertion order and empties
// the registry. Further additions fail.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	order := c.order
	c.order = nil
	c.entries = make(map[reflect.Type]*contextEntry)
	c.mu.Unlock()
	for i := len(order) - 1; i >= 0; i-- {
		if order[i].cleanup != nil {
			order[i].cleanup()
		}
	}
}

// AddToContext registers a value under the type identity of T, with an
// optional cleanup invoked on removal or context close. Registration
// fails when the slot is already occupied.
func AddToContext[T any](c *Context, value T, cleanup func()) bool {
	return c.add(typeKey[T](), value, cleanup)
}

// FromContext looks up the value registered under the type identity of T.
func FromContext[T any](c *Context) (T, bool) {
	var zero T
	v, ok := c.query(typeKey[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// RemoveFromContext unregisters the given value if it is the one stored
// under T, running its cleanup.
func RemoveFromContext[T any](c *Context, value T) bool {
	return c.remove(typeKey[T](), any(value))
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
