package cairovnc

import "time"

// EventKind identifies which field of an Event is populated.
type EventKind int

const (
	EventKeyT EventKind = iota
	EventPointerMoveT
	EventPointerClickT
)

// Key codes for the handful of named keys hosts commonly special-case. These
// are X11 keysym values, matching what RFC 6143 KeyEvent carries on the
// wire (cairovnc/events.py VNCEventKey).
const (
	KeyBackspace   = 0xff08
	KeyTab         = 0xff09
	KeyReturn      = 0xff0d
	KeyEscape      = 0xff1b
	KeyInsert      = 0xff63
	KeyDelete      = 0xffff
	KeyHome        = 0xff50
	KeyEnd         = 0xff57
	KeyPageUp      = 0xff55
	KeyPageDown    = 0xff56
	KeyCursorLeft  = 0xff51
	KeyCursorUp    = 0xff52
	KeyCursorRight = 0xff53
	KeyCursorDown  = 0xff54
)

// Event is a tagged union of the input events a connection can deliver to
// the host. Movement is always reported before a click that happens at the
// same pointer position, matching the RFB PointerEvent decomposition done
// in dispatch.go (cairovnc/events.py).
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	// EventKeyT
	Key  uint32
	Down bool

	// EventPointerMoveT and EventPointerClickT
	X, Y int

	// EventPointerMoveT: the full button mask at the time of the move
	// (cairovnc/events.py VNCEventMove's buttons argument).
	Buttons uint8

	// EventPointerClickT only: the single button bit that changed.
	Button uint8
}

// NewKeyEvent builds a key press/release event.
func NewKeyEvent(key uint32, down bool) Event {
	return Event{Kind: EventKeyT, Timestamp: time.Now(), Key: key, Down: down}
}

// NewPointerMoveEvent builds a pointer movement event carrying the full
// button mask in effect at the time of the move (spec.md §3).
func NewPointerMoveEvent(x, y int, buttons uint8) Event {
	return Event{Kind: EventPointerMoveT, Timestamp: time.Now(), X: x, Y: y, Buttons: buttons}
}

// NewPointerClickEvent builds a pointer button transition event.
func NewPointerClickEvent(x, y int, button uint8, down bool) Event {
	return Event{Kind: EventPointerClickT, Timestamp: time.Now(), X: x, Y: y, Button: button, Down: down}
}

// EventQueue is a bounded, single-consumer, multi-producer FIFO of input
// events. It blocks producers when full and the consumer when empty (spec.md
// §5): a connection's KeyEvent/PointerEvent handlers stall on Push until the
// host drains events via Next, which is exactly the backpressure that makes
// read-only mode the safer default for an unattended host.
type EventQueue struct {
	ch chan Event
}

// NewEventQueue builds a queue that holds at most capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventQueue{ch: make(chan Event, capacity)}
}

// Push enqueues ev, blocking until the queue has room.
func (q *EventQueue) Push(ev Event) {
	q.ch <- ev
}

// Next blocks until an event is available or done is closed, returning
// ok=false in the latter case. done is owned by the caller (typically the
// server's shutdown channel), not by the queue itself, so a queue never
// needs its own close/shutdown state.
func (q *EventQueue) Next(done <-chan struct{}) (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-done:
		return Event{}, false
	}
}

// Drain discards queued events until stop is closed. A server shutdown calls
// this concurrently with waiting for connection goroutines to exit, so any
// producer currently blocked in Push on a full queue is released rather than
// leaking its goroutine (spec.md §4.7).
func (q *EventQueue) Drain(stop <-chan struct{}) {
	for {
		select {
		case <-q.ch:
		case <-stop:
			return
		}
	}
}
