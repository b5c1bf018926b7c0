// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ringbuf provides a fixed-capacity circular buffer shared by the
// pipeline history and the temporal graph.
package ringbuf

// Ring is a bounded circular buffer.
//
// # Description
//
// Push is O(1) and memory never grows past capacity. Once full, each Push
// overwrites the oldest entry. Logical index 0 is always the oldest retained
// entry, which makes the buffer usable as a backing store for binary search
// over monotonically ordered data via At.
//
// # Thread Safety
//
// NOT safe for concurrent use; callers hold their own lock.
type Ring[T any] struct {
	data  []T
	head  int // next write slot
	tail  int // oldest element slot
	count int
	cap   int
	full  bool
}

// New creates a ring with the given capacity. Non-positive capacities fall
// back to 100.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// Push appends an entry, evicting the oldest when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.data[r.head] = v
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// At returns the entry at logical index i, where 0 is the oldest retained
// entry and Len()-1 the newest.
//
// # Inputs
//
//   - i: Logical index. Must satisfy 0 <= i < Len().
//
// # Outputs
//
//   - T: The entry. The zero value if i is out of range.
func (r *Ring[T]) At(i int) T {
	var zero T
	if i < 0 || i >= r.count {
		return zero
	}
	return r.data[(r.tail+i)%r.cap]
}

// PeekNewest returns the most recently pushed entry.
//
// # Outputs
//
//   - T: The newest entry.
//   - bool: False if the ring is empty.
func (r *Ring[T]) PeekNewest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := r.head - 1
	if idx < 0 {
		idx = r.cap - 1
	}
	return r.data[idx], true
}

// Slice copies out all entries from oldest to newest.
//
// # Outputs
//
//   - []T: Entries in insertion order. Nil when empty. Mutating the result
//     does not affect the ring.
func (r *Ring[T]) Slice() []T {
	if r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	if r.full {
		n := copy(out, r.data[r.tail:])
		copy(out[n:], r.data[:r.head])
	} else {
		copy(out, r.data[r.tail:r.tail+r.count])
	}
	return out
}

// Len returns the number of retained entries.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return r.cap
}

// IsFull reports whether the next Push will evict.
func (r *Ring[T]) IsFull() bool {
	return r.full
}

// IsEmpty reports whether the ring holds no entries.
func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

// Clear drops every entry and zeroes the backing slots so references are
// released.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.count = 0
	r.full = false
}

// ForEach visits entries from oldest to newest. Returning false from fn
// stops the walk.
func (r *Ring[T]) ForEach(fn func(v T) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.data[(r.tail+i)%r.cap]) {
			return
		}
	}
}

// Filter returns the entries matching the predicate, oldest first.
func (r *Ring[T]) Filter(keep func(v T) bool) []T {
	var out []T
	r.ForEach(func(v T) bool {
		if keep(v) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// Last returns up to n entries, newest first.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := r.head - 1 - i
		if idx < 0 {
			idx += r.cap
		}
		out[i] = r.data[idx]
	}
	return out
}
