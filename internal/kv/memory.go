package kv

import (
	"context"
	"sync"
)

// MemArea is an in-memory Area. It backs tests and can serve as a volatile
// storage area when persistence is not wanted.
type MemArea struct {
	mu   sync.Mutex
	data map[string]string
	notifier
}

func NewMemArea() *MemArea {
	return &MemArea{data: make(map[string]string)}
}

func (a *MemArea) Get(_ context.Context, key string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.data[key]
	return v, ok, nil
}

func (a *MemArea) Set(_ context.Context, key, value string) error {
	a.mu.Lock()
	a.data[key] = value
	a.mu.Unlock()
	a.dispatch(Change{Key: key, NewValue: &value})
	return nil
}

func (a *MemArea) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	delete(a.data, key)
	a.mu.Unlock()
	a.dispatch(Change{Key: key})
	return nil
}

func (a *MemArea) Watch(key string, fn func(Change)) func() {
	return a.watch(key, fn)
}
