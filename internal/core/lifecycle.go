package core

import (
	"context"
	"log/slog"
	"path"
	"sync"

	"tiler-backend/internal/storage"
)

// Handle is one artifact owned by a Lifecycle. Release deletes the artifact
// from scratch storage at most once, however many times it is called.
type Handle struct {
	Key string

	lifecycle *Lifecycle
	once      sync.Once
}

func (h *Handle) Release(ctx context.Context) {
	h.once.Do(func() {
		// removal must still happen when the run itself was canceled
		ctx := context.WithoutCancel(ctx)
		if err := h.lifecycle.store.DeleteObject(ctx, h.Key); err != nil {
			h.lifecycle.logger.Error("failed to remove scratch artifact", "key", h.Key, "error", err)
			return
		}
		h.lifecycle.logger.Debug("removed scratch artifact", "key", h.Key)
	})
}

// Lifecycle scopes every artifact a run writes to scratch storage. Artifacts are
// registered as they are created and whatever is still registered when Close is
// called gets removed, so every exit path of a run leaves scratch storage clean.
// Removal failures are logged and never returned.
type Lifecycle struct {
	store  storage.Provider
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	handles []*Handle
	closed  bool
}

func NewLifecycle(store storage.Provider, prefix string, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: store, prefix: prefix, logger: logger}
}

// Key returns the scratch key for name under this run's prefix.
func (l *Lifecycle) Key(name string) string {
	return path.Join(l.prefix, name)
}

// Register takes ownership of key. If the lifecycle has already been closed the
// artifact is released straight away, since no later Close would see it.
func (l *Lifecycle) Register(key string) *Handle {
	h := &Handle{Key: key, lifecycle: l}

	l.mu.Lock()
	closed := l.closed
	if !closed {
		l.handles = append(l.handles, h)
	}
	l.mu.Unlock()

	if closed {
		h.Release(context.Background())
	}
	return h
}

func (l *Lifecycle) Close(ctx context.Context) {
	l.mu.Lock()
	handles := l.handles
	l.handles = nil
	l.closed = true
	l.mu.Unlock()

	for _, h := range handles {
		h.Release(ctx)
	}
}
