package chat

import "time"

// Player is one participant in a room: an immutable name, a liveness
// timestamp, a queue of pending alerts, and a count of currently open
// private channels. Like Channel, all access is serialized by the owning
// room's lock.
type Player struct {
	Name       string
	LastActive time.Time
	Online     bool

	alerts     []Alert
	numPrivate int
}

func newPlayer(name string, now time.Time) *Player {
	return &Player{Name: name, LastActive: now, Online: true}
}

// touch records a request attributable to this player.
func (p *Player) touch(now time.Time) {
	p.LastActive = now
}

func (p *Player) pushAlert(a Alert) {
	p.alerts = append(p.alerts, a)
}

// takeAlerts drains the pending queue. The read and the clear are one step
// under the room lock, so an alert pushed after the read is kept for the
// next one.
func (p *Player) takeAlerts() []Alert {
	out := p.alerts
	p.alerts = nil
	return out
}

func (p *Player) hasAlerts() bool { return len(p.alerts) > 0 }
