package cairovnc

import (
	"encoding/binary"
	"testing"
)

func newTestConnectionForDispatch() *connection {
	return &connection{
		events:  NewEventQueue(16),
		regions: RegionQueue{},
	}
}

func TestHandlePointerEventUnchangedNoEvents(t *testing.T) {
	c := newTestConnectionForDispatch()
	c.lastPointerX, c.lastPointerY, c.lastPointerButtons = 16, 32, 0

	// Same position, same buttons: no events at all.
	fixed := pointerFixed(0, 16, 32)
	if err := c.handlePointerEvent(fixed); err != nil {
		t.Fatalf("handlePointerEvent: %v", err)
	}
	if _, ok := c.events.Next(closedChan()); ok {
		t.Fatal("expected no event when position and buttons are unchanged")
	}
}

func TestHandlePointerEventMoveThenClicks(t *testing.T) {
	c := newTestConnectionForDispatch()
	c.lastPointerX, c.lastPointerY, c.lastPointerButtons = -1, -1, 0

	// spec.md §8 scenario 6.
	fixed := pointerFixed(0x01, 0x10, 0x20)
	if err := c.handlePointerEvent(fixed); err != nil {
		t.Fatalf("handlePointerEvent: %v", err)
	}

	ev, ok := c.events.Next(neverClosed())
	if !ok || ev.Kind != EventPointerMoveT || ev.X != 16 || ev.Y != 32 || ev.Buttons != 0x01 {
		t.Fatalf("expected PointerMove(16,32,buttons=1), got %+v ok=%v", ev, ok)
	}
	ev, ok = c.events.Next(neverClosed())
	if !ok || ev.Kind != EventPointerClickT || ev.Button != 0 || !ev.Down {
		t.Fatalf("expected PointerClick(button=0, down=true), got %+v ok=%v", ev, ok)
	}
	if _, ok := c.events.Next(closedChan()); ok {
		t.Fatal("expected exactly one click for a single changed button bit")
	}
}

func TestHandlePointerEventReadOnlyDropsEvents(t *testing.T) {
	c := newTestConnectionForDispatch()
	c.readOnly = true
	if err := c.handlePointerEvent(pointerFixed(1, 1, 1)); err != nil {
		t.Fatalf("handlePointerEvent: %v", err)
	}
	if _, ok := c.events.Next(closedChan()); ok {
		t.Fatal("read-only connections must not enqueue events")
	}
}

func pointerFixed(buttons uint8, x, y uint16) []byte {
	fixed := make([]byte, 5)
	fixed[0] = buttons
	binary.BigEndian.PutUint16(fixed[1:3], x)
	binary.BigEndian.PutUint16(fixed[3:5], y)
	return fixed
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// neverClosed returns a channel that is never closed, so Next can only
// return via a buffered event being available.
func neverClosed() <-chan struct{} {
	return make(chan struct{})
}
