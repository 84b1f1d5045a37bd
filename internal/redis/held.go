package redis

import (
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/logship/internal/event"
)

// heldSet records entries handed to the pipeline and not yet acknowledged.
// Idle reclaim skips them so an entry is never in flight twice.
type heldSet struct {
	mu      sync.Mutex
	entries map[Token]struct{}
}

func newHeldSet() *heldSet {
	return &heldSet{entries: make(map[Token]struct{})}
}

func (h *heldSet) add(tok Token) {
	h.mu.Lock()
	h.entries[tok] = struct{}{}
	h.mu.Unlock()
}

// release forgets tokens of a completed batch; foreign tokens are ignored
func (h *heldSet) release(tokens []event.Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tokens {
		if tok, ok := t.(Token); ok {
			delete(h.entries, tok)
		}
	}
}

func (h *heldSet) holds(stream, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.entries[Token{Stream: stream, ID: id}]
	return ok
}

func (h *heldSet) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// byStream returns the held ids grouped by stream, sorted
func (h *heldSet) byStream() map[string][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]string)
	for tok := range h.entries {
		out[tok.Stream] = append(out[tok.Stream], tok.ID)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// withoutHeld drops pending entries that held reports as still in flight
func withoutHeld(pending []redis.XPendingExt, stream string, held func(stream, id string) bool) []redis.XPendingExt {
	if held == nil {
		return pending
	}
	out := pending[:0:0]
	for _, p := range pending {
		if held(stream, p.ID) {
			continue
		}
		out = append(out, p)
	}
	return out
}
