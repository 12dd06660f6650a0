package sequence

import (
	"sync/atomic"
)

// Event is a Status tagged with the stage that produced it. Phase-change
// events carry a nil Status.
type Event struct {
	Index   int
	Details Details
	Phase   Phase
	Status  *Status
}

// Progress delivers one stage's updates to the run's single consumer.
// Processing updates are dropped when the consumer lags; terminal updates
// block until delivered. A nil Progress or one without a channel discards
// everything.
type Progress struct {
	events  chan<- Event
	index   int
	details Details
	phase   Phase
	dropped *atomic.Int64
}

// NewProgress returns a Progress that sends to events for the stage at
// index.
func NewProgress(events chan<- Event, index int, details Details, phase Phase) *Progress {
	return &Progress{events: events, index: index, details: details, phase: phase, dropped: new(atomic.Int64)}
}

// Send delivers s.
func (p *Progress) Send(s Status) {
	if p == nil || p.events == nil {
		return
	}
	ev := Event{Index: p.index, Details: p.details, Phase: p.phase, Status: &s}
	if s.Terminal() {
		p.events <- ev
		return
	}
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Whole is shorthand for Send(Whole(u)).
func (p *Progress) Whole(u Unit) { p.Send(Whole(u)) }

// Sub is shorthand for Send(Subprocess(parent, child)).
func (p *Progress) Sub(parent, child Unit) { p.Send(Subprocess(parent, child)) }

// Dropped is the number of Processing updates discarded so far.
func (p *Progress) Dropped() int64 {
	if p == nil || p.dropped == nil {
		return 0
	}
	return p.dropped.Load()
}

// Token is the cooperative cancellation flag shared by every stage. It is
// checked before each scene dispatch and before each quality probe; work
// already running is allowed to finish.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns an uncancelled token.
func NewToken() *Token { return &Token{} }

// Cancel sets the flag. It is safe to call more than once.
func (t *Token) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether Cancel was called. A nil token never cancels.
func (t *Token) Cancelled() bool { return t != nil && t.cancelled.Load() }
