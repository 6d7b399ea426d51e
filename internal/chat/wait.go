package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WaitingRequest is one parked long-poll. It lives in a room's wait
// coordinator from park until its single resolution: a satisfying event, its
// own timeout (empty payload, rendered as 204), room teardown, or
// abandonment when the client disconnects.
type WaitingRequest struct {
	ID       string
	Name     string // "" for a ghost (unauthenticated) poller
	Cursors  map[string]int
	Deadline time.Time

	done  chan PollPayload
	timer *time.Timer
}

// Done yields the request's resolution payload. It receives exactly one
// value unless the request is abandoned.
func (r *WaitingRequest) Done() <-chan PollPayload { return r.done }

// waitCoordinator holds a room's parked requests. Its mutex is the
// resolution boundary: whichever party (event wakeup, timeout, abandon,
// teardown) removes a request from the table while holding the mutex is the
// one that resolves it, so every request resolves exactly once.
//
// The coordinator's mutex nests inside the room lock (room operations wake
// parked requests while mutating) and is also taken alone by timer and
// abandon paths, which never touch room state.
type waitCoordinator struct {
	mu     sync.Mutex
	parked map[string]*WaitingRequest
	closed bool
	log    *slog.Logger
}

func newWaitCoordinator(log *slog.Logger) *waitCoordinator {
	return &waitCoordinator{parked: make(map[string]*WaitingRequest), log: log}
}

// park registers a request and arms its timeout. If the room is already
// tearing down the request resolves immediately with no content.
func (w *waitCoordinator) park(name string, cursors map[string]int, timeout time.Duration) *WaitingRequest {
	req := &WaitingRequest{
		ID:       uuid.NewString(),
		Name:     name,
		Cursors:  cursors,
		Deadline: time.Now().Add(timeout),
		done:     make(chan PollPayload, 1),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		req.done <- PollPayload{}
		return req
	}

	w.parked[req.ID] = req
	req.timer = time.AfterFunc(timeout, func() { w.expire(req) })
	w.log.Debug("request parked", "request_id", req.ID, "player", name, "timeout", timeout)
	return req
}

// expire resolves a request that reached its deadline while still parked.
func (w *waitCoordinator) expire(req *WaitingRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.parked[req.ID]; !ok {
		return // lost the race to an event wakeup
	}
	delete(w.parked, req.ID)
	req.done <- PollPayload{}
	w.log.Debug("request timed out", "request_id", req.ID, "player", req.Name)
}

// wake resolves every parked request the match function satisfies. Requests
// it does not satisfy stay parked.
func (w *waitCoordinator) wake(match func(*WaitingRequest) (PollPayload, bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, req := range w.parked {
		payload, ok := match(req)
		if !ok {
			continue
		}
		delete(w.parked, id)
		req.stopTimer()
		req.done <- payload
	}
}

// wakeAll resolves every parked request unconditionally with the payload the
// supplied function produces.
func (w *waitCoordinator) wakeAll(payloadFor func(*WaitingRequest) PollPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, req := range w.parked {
		delete(w.parked, id)
		req.stopTimer()
		req.done <- payloadFor(req)
	}
}

// abandon drops a request whose client went away. Nothing is sent on done.
func (w *waitCoordinator) abandon(req *WaitingRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.parked[req.ID]; !ok {
		return
	}
	delete(w.parked, req.ID)
	req.stopTimer()
	w.log.Debug("request abandoned", "request_id", req.ID, "player", req.Name)
}

// closeAll is the FORCE_CLOSE path used on room teardown: every parked
// request resolves with no content and later parks are refused.
func (w *waitCoordinator) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for id, req := range w.parked {
		delete(w.parked, id)
		req.stopTimer()
		req.done <- PollPayload{}
	}
}

func (w *waitCoordinator) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.parked)
}

func (r *WaitingRequest) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
	}
}
