// Package batch accumulates encoded items into size- and count-bounded batches.
package batch

import "fmt"

// Settings bounds a single batch
type Settings struct {
	MaxEvents int
	MaxBytes  int
}

// Outcome reports what Insert did with an item
type Outcome int

const (
	// Accepted means the item was added and the batch still has room
	Accepted Outcome = iota
	// AcceptedFull means the item was added and a threshold is now reached;
	// the caller should Finish the batch
	AcceptedFull
	// Overflow means the item does not fit next to the buffered items and was
	// not added. Finish the current batch and insert it again.
	Overflow
	// TooLarge means the item alone exceeds MaxBytes and can never be batched
	TooLarge
)

// String returns the outcome name for logs
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case AcceptedFull:
		return "accepted_full"
	case Overflow:
		return "overflow"
	case TooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Batch is a finalized group of items. It must not be modified after Finish.
type Batch[T any] struct {
	Items []T
	Size  int
}

// Len returns the number of items in the batch
func (b Batch[T]) Len() int {
	return len(b.Items)
}

// Buffer accumulates items for a single owner. The size estimate is kept
// incrementally from the per-item sizes supplied by the caller, so Insert is
// O(1) and never re-serializes.
//
// Not safe for concurrent use.
type Buffer[T any] struct {
	settings Settings
	items    []T
	size     int
}

// New creates an empty Buffer. Both limits must be positive.
func New[T any](settings Settings) *Buffer[T] {
	if settings.MaxEvents < 1 || settings.MaxBytes < 1 {
		panic(fmt.Sprintf("batch: limits must be positive, got events=%d bytes=%d",
			settings.MaxEvents, settings.MaxBytes))
	}
	return &Buffer[T]{settings: settings}
}

// Insert adds item whose encoded size is size. It either applies fully or
// not at all.
func (b *Buffer[T]) Insert(item T, size int) Outcome {
	if size > b.settings.MaxBytes {
		return TooLarge
	}
	if len(b.items) >= b.settings.MaxEvents || b.size+size > b.settings.MaxBytes {
		return Overflow
	}

	if b.items == nil {
		b.items = make([]T, 0, min(b.settings.MaxEvents, 64))
	}
	b.items = append(b.items, item)
	b.size += size

	if len(b.items) >= b.settings.MaxEvents || b.size >= b.settings.MaxBytes {
		return AcceptedFull
	}
	return Accepted
}

// IsEmpty reports whether no items are buffered
func (b *Buffer[T]) IsEmpty() bool {
	return len(b.items) == 0
}

// Len returns the number of buffered items
func (b *Buffer[T]) Len() int {
	return len(b.items)
}

// SizeEstimate returns the accumulated encoded size of the buffered items
func (b *Buffer[T]) SizeEstimate() int {
	return b.size
}

// Settings returns the limits the buffer was created with
func (b *Buffer[T]) Settings() Settings {
	return b.settings
}

// Finish hands the buffered items over as a Batch and resets the buffer.
// Calling Finish on an empty buffer is a programming error; check IsEmpty.
func (b *Buffer[T]) Finish() Batch[T] {
	if len(b.items) == 0 {
		panic("batch: Finish called on empty buffer")
	}
	out := Batch[T]{Items: b.items, Size: b.size}
	b.items = nil
	b.size = 0
	return out
}
