package kv

import (
	"context"
	"sync"
)

// Change describes a single key update in an Area. NewValue is nil when the
// key was removed.
type Change struct {
	Key      string
	NewValue *string
}

// Area is a string-keyed value store with change notification. Watchers fire
// for every write, including the caller's own: the area broadcasts changes
// to all attached watchers the way a shared settings store broadcasts to all
// attached contexts.
type Area interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Watch registers fn for changes to key and returns a function that
	// unregisters it.
	Watch(key string, fn func(Change)) (cancel func())
}

// notifier fans change events out to per-key watchers. Dispatch happens
// outside the notifier lock so a watcher may re-enter the area.
type notifier struct {
	mu       sync.Mutex
	nextID   int
	watchers map[string]map[int]func(Change)
}

func (n *notifier) watch(key string, fn func(Change)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.watchers == nil {
		n.watchers = make(map[string]map[int]func(Change))
	}
	if n.watchers[key] == nil {
		n.watchers[key] = make(map[int]func(Change))
	}
	id := n.nextID
	n.nextID++
	n.watchers[key][id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.watchers[key], id)
	}
}

func (n *notifier) dispatch(c Change) {
	n.mu.Lock()
	fns := make([]func(Change), 0, len(n.watchers[c.Key]))
	for _, fn := range n.watchers[c.Key] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
