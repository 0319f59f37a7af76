package usecases

import "context"

// Ticket identifies one issued dependent fetch.
type Ticket struct {
	seq uint64
}

// Seq returns the ticket's sequence number.
func (t Ticket) Seq() uint64 { return t.seq }

// Sequencer stamps dependent fetches with monotonically increasing sequence
// numbers so that only the most recently issued fetch may apply its result.
// Issuing a new fetch cancels the context of the one it supersedes.
//
// A Sequencer is not safe for concurrent use; owners guard it with their own mutex.
type Sequencer struct {
	issued  uint64
	settled uint64
	cancel  context.CancelFunc
}

// Issue starts a new fetch derived from parent.
func (s *Sequencer) Issue(parent context.Context) (Ticket, context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.issued++
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return Ticket{seq: s.issued}, ctx
}

// Settle reports whether t is still the latest issued fetch. Only then may
// the caller apply the fetch's result; a false return means the result is stale
// and must be discarded.
func (s *Sequencer) Settle(t Ticket) bool {
	if t.seq != s.issued {
		return false
	}
	s.settled = t.seq
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Pending reports whether the latest issued fetch has not settled yet.
func (s *Sequencer) Pending() bool { return s.issued != s.settled }

// Issued returns the latest issued sequence number.
func (s *Sequencer) Issued() uint64 { return s.issued }

// Settled returns the sequence number of the last fetch allowed to apply.
func (s *Sequencer) Settled() uint64 { return s.settled }

// Stop cancels the in-flight fetch, if any.
func (s *Sequencer) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
