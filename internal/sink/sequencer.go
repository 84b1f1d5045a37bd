package sink

import (
	"sync"

	"github.com/ibs-source/logship/internal/event"
)

// Sequencer releases acknowledgments in registration order. Completions
// may arrive in any order; each is held until every earlier entry has also
// completed, then the contiguous prefix is flushed to the Acker.
//
// Register is called by the single driver goroutine. Complete may be called
// from any goroutine. Acker calls are serialized.
type Sequencer struct {
	mu      sync.Mutex
	acker   event.Acker
	next    uint64
	head    uint64
	pending map[uint64]*ackSlot
}

type ackSlot struct {
	tokens []event.Token
	status event.Status
	done   bool
}

// NewSequencer creates a sequencer emitting to acker
func NewSequencer(acker event.Acker) *Sequencer {
	if acker == nil {
		acker = event.NopAcker
	}
	return &Sequencer{
		acker:   acker,
		pending: make(map[uint64]*ackSlot),
	}
}

// Register reserves the next position for tokens and returns its sequence number
func (s *Sequencer) Register(tokens []event.Token) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.next
	s.next++
	s.pending[seq] = &ackSlot{tokens: tokens}
	return seq
}

// Complete records the outcome of seq and flushes every acknowledgment that
// is now in order. Completing an unknown or already completed seq is a no-op.
func (s *Sequencer) Complete(seq uint64, status event.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.pending[seq]
	if !ok || slot.done {
		return
	}
	slot.status = status
	slot.done = true

	for {
		head, ok := s.pending[s.head]
		if !ok || !head.done {
			return
		}
		delete(s.pending, s.head)
		s.head++
		if len(head.tokens) > 0 {
			s.acker.Acknowledge(head.tokens, head.status)
		}
	}
}

// Outstanding returns the number of registered entries not yet acknowledged
func (s *Sequencer) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
