package kv

import (
	"context"
	"log/slog"
	"sync"
)

// Options adjust a Store's behavior. The zero value gives the usual
// behavior: defaults are written back on first read, stored values replace
// defaults wholesale, and errors are logged.
type Options struct {
	// SkipWriteDefaults leaves the area untouched when the key is absent
	// and the default is adopted.
	SkipWriteDefaults bool
	// MergeDefaults shallow-merges a stored object over the default, with
	// the stored fields taking precedence. Only object and map shapes
	// merge; other shapes ignore this.
	MergeDefaults bool
	// OnError receives every read/write/decode failure. The store never
	// propagates these; it keeps operating with its current in-memory
	// value.
	OnError func(error)
}

// Store mirrors one typed value between memory and an Area. The in-memory
// value and the persisted value are equal except in the window between a
// mutation and its flush, or between an external change event and its
// application.
type Store[T any] struct {
	area  Area
	key   string
	def   T
	shape Shape
	opts  Options

	mu       sync.Mutex
	value    T
	present  bool
	suppress int

	cancelWatch func()
}

// NewStore creates a store for key, reads the persisted value (adopting and
// writing back def when absent), and begins watching the area for external
// changes to the key.
func NewStore[T any](ctx context.Context, area Area, key string, def T, opts Options) *Store[T] {
	if opts.OnError == nil {
		opts.OnError = func(err error) {
			slog.Error("storage error", "key", key, "error", err)
		}
	}
	s := &Store[T]{
		area:    area,
		key:     key,
		def:     def,
		shape:   shapeOf(any(def)),
		opts:    opts,
		value:   def,
		present: true,
	}
	s.read(ctx, nil)
	s.cancelWatch = area.Watch(key, s.applyChange)
	return s
}

// Get returns the current in-memory value.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the in-memory value and flushes it to the area.
func (s *Store[T]) Set(ctx context.Context, v T) {
	s.mu.Lock()
	s.value = v
	s.present = true
	s.mu.Unlock()
	s.flush(ctx)
}

// Clear marks the value absent and removes the key from the area.
func (s *Store[T]) Clear(ctx context.Context) {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.present = false
	s.mu.Unlock()
	s.flush(ctx)
}

// Close stops watching the area. The in-memory value stays readable.
func (s *Store[T]) Close() {
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
}

// flush writes the serialized value, or removes the key when the value is
// absent. The guard keeps a flush from firing while an external change
// notification is being applied.
func (s *Store[T]) flush(ctx context.Context) {
	s.mu.Lock()
	if s.suppress > 0 {
		s.mu.Unlock()
		return
	}
	present := s.present
	v := s.value
	s.mu.Unlock()

	if !present {
		if err := s.area.Remove(ctx, s.key); err != nil {
			s.opts.OnError(err)
		}
		return
	}
	raw, err := encodeValue(s.shape, v)
	if err != nil {
		s.opts.OnError(err)
		return
	}
	if err := s.area.Set(ctx, s.key, raw); err != nil {
		s.opts.OnError(err)
	}
}

// applyChange applies an external change notification. Writes are suppressed
// for exactly this one processing pass; the guard lifts even when applying
// the notification fails.
func (s *Store[T]) applyChange(c Change) {
	if c.Key != s.key {
		return
	}
	s.mu.Lock()
	s.suppress++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.suppress--
		s.mu.Unlock()
	}()
	s.read(context.Background(), &c)
}

// read loads the value for the key, either from the given change event or
// from the area itself. An absent value adopts the default and, unless
// configured otherwise, writes it back so the persisted state is never
// implicitly empty when a default exists.
func (s *Store[T]) read(ctx context.Context, ev *Change) {
	var raw *string
	if ev != nil {
		raw = ev.NewValue
	} else {
		v, ok, err := s.area.Get(ctx, s.key)
		if err != nil {
			s.opts.OnError(err)
			return
		}
		if ok {
			raw = &v
		}
	}

	if raw == nil {
		s.mu.Lock()
		s.value = s.def
		s.present = true
		s.mu.Unlock()
		if !s.opts.SkipWriteDefaults && s.shape != ShapeAny {
			enc, err := encodeValue(s.shape, s.def)
			if err != nil {
				s.opts.OnError(err)
				return
			}
			if err := s.area.Set(ctx, s.key, enc); err != nil {
				s.opts.OnError(err)
			}
		}
		return
	}

	var v T
	var err error
	if s.opts.MergeDefaults && (s.shape == ShapeObject || s.shape == ShapeMap) {
		v, err = decodeMerged(*raw, s.def)
	} else {
		v, err = decodeValue[T](s.shape, *raw)
	}
	if err != nil {
		s.opts.OnError(err)
		return
	}
	s.mu.Lock()
	s.value = v
	s.present = true
	s.mu.Unlock()
}
