package cairovnc

// RegionRequest records one FramebufferUpdateRequest from a client. X1/Y1
// are the exclusive bounds (X+W, Y+H) precomputed once since every consumer
// needs them for clipping (spec.md §4.5).
type RegionRequest struct {
	Incremental bool
	X, Y        int
	W, H        int
	X1, Y1      int
}

// NewRegionRequest builds a RegionRequest from the wire fields of a
// FramebufferUpdateRequest message.
func NewRegionRequest(incremental bool, x, y, w, h int) RegionRequest {
	return RegionRequest{
		Incremental: incremental,
		X: x, Y: y, W: w, H: h,
		X1: x + w, Y1: y + h,
	}
}

// Clip intersects the request with a width x height framebuffer, returning
// ok=false if nothing of the request remains visible.
func (r RegionRequest) Clip(width, height int) (clipped RegionRequest, ok bool) {
	x0, y0 := r.X, r.Y
	x1, y1 := r.X1, r.Y1
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > width {
		x1 = width
	}
	if y1 > height {
		y1 = height
	}
	if x1 <= x0 || y1 <= y0 {
		return RegionRequest{}, false
	}
	return RegionRequest{
		Incremental: r.Incremental,
		X: x0, Y: y0, W: x1 - x0, H: y1 - y0,
		X1: x1, Y1: y1,
	}, true
}

// RegionQueue holds the pending FramebufferUpdateRequests for one connection
// in arrival order. Requests are not coalesced: every Add appends, and Pop
// returns them oldest first.
type RegionQueue struct {
	pending []RegionRequest
}

// Add appends a request to the queue.
func (q *RegionQueue) Add(r RegionRequest) {
	q.pending = append(q.pending, r)
}

// Pop removes and returns the oldest queued request.
func (q *RegionQueue) Pop() (RegionRequest, bool) {
	if len(q.pending) == 0 {
		return RegionRequest{}, false
	}
	r := q.pending[0]
	q.pending = q.pending[1:]
	return r, true
}

// Len reports how many requests are queued.
func (q *RegionQueue) Len() int { return len(q.pending) }
