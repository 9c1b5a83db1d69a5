package sync

import (
	stdsync "sync"
)

// Optimistic holds a server-authoritative base value plus an ordered set of
// staged local patches. The UI renders Value (base with patches applied) the
// instant a mutation is issued; when the authoritative response or feed event
// lands, the stage is confirmed into the base, and on failure it is rolled
// back. A newer base never loses to an in-flight request: confirming or
// resetting replaces the base wholesale.
type Optimistic[T any] struct {
	mu     stdsync.Mutex
	base   T
	stages []stage[T]
	next   uint64
}

type stage[T any] struct {
	token uint64
	patch func(T) T
}

func NewOptimistic[T any](base T) *Optimistic[T] {
	return &Optimistic[T]{base: base}
}

// Stage registers a local patch and returns its token.
func (o *Optimistic[T]) Stage(patch func(T) T) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	o.stages = append(o.stages, stage[T]{token: o.next, patch: patch})
	return o.next
}

// Confirm replaces the base with the authoritative value and drops the stage.
func (o *Optimistic[T]) Confirm(token uint64, authoritative T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.base = authoritative
	o.drop(token)
}

// Rollback discards a failed stage, leaving the base untouched.
func (o *Optimistic[T]) Rollback(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drop(token)
}

// Reset replaces the base from a feed event. Staged patches stay applied on
// top until their own mutations settle.
func (o *Optimistic[T]) Reset(authoritative T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.base = authoritative
}

// Value is the rendered state: base with every staged patch applied in order.
func (o *Optimistic[T]) Value() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	value := o.base
	for _, s := range o.stages {
		value = s.patch(value)
	}
	return value
}

// Pending reports the number of unsettled stages.
func (o *Optimistic[T]) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.stages)
}

func (o *Optimistic[T]) drop(token uint64) {
	for i, s := range o.stages {
		if s.token == token {
			o.stages = append(o.stages[:i], o.stages[i+1:]...)
			return
		}
	}
}
