package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingArea wraps a MemArea and counts outbound writes.
type countingArea struct {
	*MemArea
	mu      sync.Mutex
	sets    int
	removes int
}

func newCountingArea() *countingArea {
	return &countingArea{MemArea: NewMemArea()}
}

func (a *countingArea) Set(ctx context.Context, key, value string) error {
	a.mu.Lock()
	a.sets++
	a.mu.Unlock()
	return a.MemArea.Set(ctx, key, value)
}

func (a *countingArea) Remove(ctx context.Context, key string) error {
	a.mu.Lock()
	a.removes++
	a.mu.Unlock()
	return a.MemArea.Remove(ctx, key)
}

func (a *countingArea) setCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sets
}

func TestStore_AdoptsAndWritesDefault(t *testing.T) {
	ctx := context.Background()
	area := NewMemArea()

	s := NewStore(ctx, area, "greeting", "hello", Options{})
	defer s.Close()

	if got := s.Get(); got != "hello" {
		t.Errorf("Get() = %q, want default", got)
	}
	raw, ok, _ := area.Get(ctx, "greeting")
	if !ok {
		t.Fatal("default was not written back to the area")
	}
	if raw != "hello" {
		t.Errorf("persisted %q, want %q", raw, "hello")
	}
}

func TestStore_SkipWriteDefaults(t *testing.T) {
	ctx := context.Background()
	area := NewMemArea()

	s := NewStore(ctx, area, "greeting", "hello", Options{SkipWriteDefaults: true})
	defer s.Close()

	if _, ok, _ := area.Get(ctx, "greeting"); ok {
		t.Error("default was written despite SkipWriteDefaults")
	}
}

func TestStore_ReadsExistingValue(t *testing.T) {
	ctx := context.Background()
	area := NewMemArea()
	area.Set(ctx, "count", "7")

	s := NewStore(ctx, area, "count", 0, Options{})
	defer s.Close()

	if got := s.Get(); got != 7 {
		t.Errorf("Get() = %d, want 7", got)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("bool", func(t *testing.T) {
		area := NewMemArea()
		s := NewStore(ctx, area, "k", false, Options{})
		defer s.Close()
		s.Set(ctx, true)
		if !s.Get() {
			t.Error("round trip lost value")
		}
	})

	t.Run("date", func(t *testing.T) {
		area := NewMemArea()
		s := NewStore(ctx, area, "k", time.Time{}, Options{})
		defer s.Close()
		in := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
		s.Set(ctx, in)
		if !s.Get().Equal(in) {
			t.Errorf("Get() = %v, want %v", s.Get(), in)
		}
	})

	t.Run("object", func(t *testing.T) {
		type prefs struct {
			Count int `json:"count"`
		}
		area := NewMemArea()
		s := NewStore(ctx, area, "k", prefs{Count: 12}, Options{})
		defer s.Close()
		s.Set(ctx, prefs{Count: 3})
		if s.Get().Count != 3 {
			t.Errorf("Count = %d, want 3", s.Get().Count)
		}
	})

	t.Run("list", func(t *testing.T) {
		area := NewMemArea()
		s := NewStore(ctx, area, "k", []string{}, Options{})
		defer s.Close()
		s.Set(ctx, []string{"a", "b"})
		got := s.Get()
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("Get() = %v", got)
		}
	})
}

func TestStore_MergeDefaults(t *testing.T) {
	type prefs struct {
		Count int    `json:"count"`
		Theme string `json:"theme"`
	}
	ctx := context.Background()
	area := NewMemArea()
	// Stored value predates the Theme field.
	area.Set(ctx, "prefs", `{"count":5}`)

	s := NewStore(ctx, area, "prefs", prefs{Count: 12, Theme: "light"}, Options{MergeDefaults: true})
	defer s.Close()

	got := s.Get()
	if got.Count != 5 {
		t.Errorf("Count = %d, want stored value 5", got.Count)
	}
	if got.Theme != "light" {
		t.Errorf("Theme = %q, want default preserved", got.Theme)
	}
}

func TestStore_ExternalChangeNoWriteLoop(t *testing.T) {
	ctx := context.Background()
	area := newCountingArea()

	s := NewStore[string](ctx, area, "k", "initial", Options{})
	defer s.Close()

	before := area.setCount()
	// Simulate a change arriving from another context: write to the
	// underlying area directly, bypassing the counter.
	area.MemArea.Set(ctx, "k", "external")

	if got := s.Get(); got != "external" {
		t.Errorf("Get() = %q, want external value applied", got)
	}
	if after := area.setCount(); after != before {
		t.Errorf("external change produced %d outbound writes, want 0", after-before)
	}
}

func TestStore_GuardLiftedAfterFailedApply(t *testing.T) {
	ctx := context.Background()
	area := newCountingArea()

	var hookErr error
	s := NewStore(ctx, area, "k", 1, Options{OnError: func(err error) { hookErr = err }})
	defer s.Close()

	// Deliver a notification the number codec cannot decode.
	area.MemArea.Set(ctx, "k", "not a number")
	if hookErr == nil {
		t.Fatal("expected decode error through the hook")
	}
	if got := s.Get(); got != 1 {
		t.Errorf("Get() = %d, want last good value 1", got)
	}

	// The suppression must be lifted: a local Set still flushes.
	before := area.setCount()
	s.Set(ctx, 9)
	if after := area.setCount(); after != before+1 {
		t.Errorf("Set after failed apply produced %d writes, want 1", after-before)
	}
	raw, _, _ := area.Get(ctx, "k")
	if raw != "9" {
		t.Errorf("persisted %q, want %q", raw, "9")
	}
}

func TestStore_ClearRemovesKey(t *testing.T) {
	ctx := context.Background()
	area := newCountingArea()

	s := NewStore(ctx, area, "k", "v", Options{})
	s.Close() // stop watching so the default does not get re-adopted

	s.Clear(ctx)
	if _, ok, _ := area.Get(ctx, "k"); ok {
		t.Error("key still present after Clear")
	}
	if area.removes != 1 {
		t.Errorf("removes = %d, want 1", area.removes)
	}
}

// failingArea errors on every operation.
type failingArea struct {
	notifier
}

func (*failingArea) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend unavailable")
}
func (*failingArea) Set(context.Context, string, string) error {
	return errors.New("backend unavailable")
}
func (*failingArea) Remove(context.Context, string) error {
	return errors.New("backend unavailable")
}
func (f *failingArea) Watch(key string, fn func(Change)) func() {
	return f.watch(key, fn)
}

func TestStore_ErrorsSwallowedThroughHook(t *testing.T) {
	ctx := context.Background()
	var got []error
	s := NewStore(ctx, &failingArea{}, "k", "fallback", Options{
		OnError: func(err error) { got = append(got, err) },
	})
	defer s.Close()

	if v := s.Get(); v != "fallback" {
		t.Errorf("Get() = %q, want default despite read failure", v)
	}
	s.Set(ctx, "next")
	if v := s.Get(); v != "next" {
		t.Errorf("Get() = %q, in-memory value must survive write failure", v)
	}
	if len(got) == 0 {
		t.Error("error hook never invoked")
	}
}
