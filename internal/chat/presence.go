package chat

import (
	"sync"
	"time"
)

// presenceMonitor owns a room's liveness sweeps. The periodic heartbeat
// evicts players idle past the configured threshold; defibrillation is the
// on-demand variant with a much tighter window, fired when an event (a
// broadcast to everyone) should surface silent departures quickly.
type presenceMonitor struct {
	room       *Room
	interval   time.Duration
	maxIdle    time.Duration
	defibDelay time.Duration

	mu        sync.Mutex
	running   bool
	defibbing bool
	stopped   bool
	stopCh    chan struct{}
}

func newPresenceMonitor(room *Room, opts Options) *presenceMonitor {
	return &presenceMonitor{
		room:       room,
		interval:   opts.HeartbeatInterval,
		maxIdle:    opts.IdleTimeout,
		defibDelay: opts.DefibrillationDelay,
		stopCh:     make(chan struct{}),
	}
}

// start arms the periodic heartbeat. Idempotent; the loop lives until the
// room is torn down.
func (m *presenceMonitor) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.stopped {
		return
	}
	m.running = true
	go m.loop()
}

func (m *presenceMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.room.evictIdle(time.Now().Add(-m.maxIdle))
		case <-m.stopCh:
			return
		}
	}
}

// defibrillate schedules a one-shot sweep that evicts players who make no
// request between now and the delay elapsing. A sweep already pending for
// this room absorbs the trigger.
func (m *presenceMonitor) defibrillate() {
	m.mu.Lock()
	if m.defibbing || m.stopped {
		m.mu.Unlock()
		return
	}
	m.defibbing = true
	m.mu.Unlock()

	start := time.Now()
	time.AfterFunc(m.defibDelay, func() {
		m.mu.Lock()
		m.defibbing = false
		stopped := m.stopped
		m.mu.Unlock()
		if stopped {
			return
		}
		m.room.evictIdle(start)
	})
}

// stop cancels the heartbeat and disarms future sweeps. Tolerates repeated
// calls.
func (m *presenceMonitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}
