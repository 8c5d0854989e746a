package indexer

import "sync"

// IndexLock gives non-blocking, per-root exclusion to indexing runs. A second
// caller for a root that is already being indexed is turned away instead of
// queued.
type IndexLock struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// TryAcquire reserves root. It returns false if root is already held.
func (l *IndexLock) TryAcquire(root string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil {
		l.active = make(map[string]struct{})
	}
	if _, held := l.active[root]; held {
		return false
	}
	l.active[root] = struct{}{}
	return true
}

// Release frees root. Must only be called after a successful TryAcquire.
func (l *IndexLock) Release(root string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, root)
}

// Held reports whether root is currently being indexed
func (l *IndexLock) Held(root string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.active[root]
	return held
}
