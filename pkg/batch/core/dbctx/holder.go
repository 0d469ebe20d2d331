package dbctx

import (
	"context"
	"sync"
)

// Holder is the execution context of one invocation or request: a mutable slot
// holding the selected Identifier. An unset Holder reports Primary.
//
// A Holder must never be shared between invocations. It is safe for concurrent use
// by the goroutines of a single invocation.
type Holder struct {
	mu  sync.RWMutex
	id  Identifier
	set bool
}

// NewHolder returns an unset Holder.
func NewHolder() *Holder {
	return &Holder{}
}

// SetCurrent stores id. Values outside the closed set are stored as Primary.
func (h *Holder) SetCurrent(id Identifier) {
	if !id.Valid() {
		id = Primary
	}
	h.mu.Lock()
	h.id = id
	h.set = true
	h.mu.Unlock()
}

// Current returns the stored identifier, or Primary when unset. It never fails.
func (h *Holder) Current() Identifier {
	if h == nil {
		return Primary
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.set {
		return Primary
	}
	return h.id
}

// IsSet reports whether SetCurrent was called since creation or the last Clear.
func (h *Holder) IsSet() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.set
}

// Clear resets the holder to unset.
func (h *Holder) Clear() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.id = ""
	h.set = false
	h.mu.Unlock()
}

type holderKey struct{}

// WithHolder returns a copy of ctx carrying h.
func WithHolder(ctx context.Context, h *Holder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// HolderFrom returns the Holder carried by ctx, if any.
func HolderFrom(ctx context.Context) (*Holder, bool) {
	h, ok := ctx.Value(holderKey{}).(*Holder)
	return h, ok && h != nil
}

// Ensure returns ctx and its Holder, attaching a fresh Holder when ctx has none.
func Ensure(ctx context.Context) (context.Context, *Holder) {
	if h, ok := HolderFrom(ctx); ok {
		return ctx, h
	}
	h := NewHolder()
	return WithHolder(ctx, h), h
}

// Current returns the identifier held by ctx's Holder, or Primary.
func Current(ctx context.Context) Identifier {
	h, _ := HolderFrom(ctx)
	return h.Current()
}
