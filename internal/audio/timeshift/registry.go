package timeshift

import "sync"

// Registry owns the per-source_tag Buffer lifecycle: created lazily on
// first path referencing a tag, destroyed when no path references it,
// retaining history across path churn until then.
type Registry struct {
	mu                sync.Mutex
	maxHistorySeconds int
	buffers           map[string]*entry
}

type entry struct {
	buf      *Buffer
	refcount int
}

// NewRegistry creates a registry whose buffers are each sized for
// maxHistorySeconds.
func NewRegistry(maxHistorySeconds int) *Registry {
	return &Registry{
		maxHistorySeconds: maxHistorySeconds,
		buffers:           make(map[string]*entry),
	}
}

// Acquire returns the buffer for tag, creating it if this is the first
// reference, and increments its refcount. Call Release when the referencing
// source-path is destroyed.
func (r *Registry) Acquire(tag string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.buffers[tag]
	if !ok {
		e = &entry{buf: NewBuffer(r.maxHistorySeconds)}
		r.buffers[tag] = e
	}
	e.refcount++
	return e.buf
}

// Release decrements tag's refcount, destroying the buffer when it reaches
// zero.
func (r *Registry) Release(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.buffers[tag]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(r.buffers, tag)
	}
}

// Lookup returns the buffer for tag without affecting its refcount, used by
// receivers to append incoming packets. Returns (nil, false) if no
// source-path currently subscribes to tag — the receiver drops the packet
// without allocating a buffer.
func (r *Registry) Lookup(tag string) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.buffers[tag]
	if !ok {
		return nil, false
	}
	return e.buf, true
}

// Tags returns a snapshot of all currently-registered source tags, for
// diagnostics/statistics export.
func (r *Registry) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]string, 0, len(r.buffers))
	for t := range r.buffers {
		tags = append(tags, t)
	}
	return tags
}
