package chat

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Room is the unit of isolation: a roster of players, a set of channels
// (always at least "public"), a wait coordinator for parked polls, and a
// presence monitor. Every mutation of room state happens under r.mu, so
// concurrent requests against the same room observe one consistent sequence
// of events; different rooms never contend.
type Room struct {
	ID string

	mu       sync.Mutex
	players  map[string]*Player
	channels map[string]*Channel

	waiters *waitCoordinator
	monitor *presenceMonitor
	log     *slog.Logger
	opts    Options

	closeOnce sync.Once
	onEmpty   func(roomID string)
}

func newRoom(id string, log *slog.Logger, opts Options, onEmpty func(string)) *Room {
	r := &Room{
		ID:       id,
		players:  make(map[string]*Player),
		channels: map[string]*Channel{PublicChannelID: newBroadcastChannel(PublicChannelID)},
		waiters:  newWaitCoordinator(log),
		log:      log,
		opts:     opts,
		onEmpty:  onEmpty,
	}
	r.monitor = newPresenceMonitor(r, opts)
	return r
}

// AddPlayer joins a named participant: the roster gains the player, the
// public channel gets a welcome message, and everyone already present is
// alerted. The first join also arms the room's heartbeat.
func (r *Room) AddPlayer(name string) error {
	if err := validIdent(name); err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.players[name]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPlayerExists, name)
	}
	for _, p := range r.players {
		p.pushAlert(Alert{Code: AlertPlayerJoin, Name: name})
	}
	r.players[name] = newPlayer(name, time.Now())
	r.channels[PublicChannelID].append(botMessage(botJoinedText, name))
	r.wakeLocked(true)
	r.mu.Unlock()

	r.monitor.start()
	r.log.Info("player joined", "room", r.ID, "player", name)
	return nil
}

// RemovePlayer handles a voluntary leave: departure messages land on the
// public channel and on every narrowcast channel the player belonged to,
// remaining players get a PLAYER_LEAVE alert, and an emptied room is torn
// down.
func (r *Room) RemovePlayer(name string) error {
	r.mu.Lock()
	if _, ok := r.players[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	r.dropPlayerLocked(name, botLeftText)
	r.broadcastLeaveLocked([]string{name})
	empty := len(r.players) == 0
	r.mu.Unlock()

	r.log.Info("player left", "room", r.ID, "player", name)
	if empty {
		r.teardown()
	}
	return nil
}

// PostMessage appends a message to the channel its recipient resolves to:
// "everyone" means the public channel, any other name the canonical pair
// channel between sender and recipient. If the sender owns a mirror channel
// a redacted copy lands there first. A broadcast to everyone also triggers a
// defibrillation sweep, the fast path for noticing silently departed
// players.
func (r *Room) PostMessage(msg Message) error {
	target := PublicChannelID
	broadcast := msg.To == Everyone
	if !broadcast {
		target = pairID(msg.From, msg.To)
	}

	r.mu.Lock()
	dest, ok := r.channels[target]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChannelNotFound, target)
	}
	if p, ok := r.players[msg.From]; ok {
		p.touch(time.Now())
	}
	if !broadcast {
		if mirror, ok := r.channels[msg.From]; ok && mirror.Mode == ModeNarrowcast {
			copied := msg
			copied.To = redacted
			mirror.append(copied)
		}
	}
	dest.append(msg)
	r.wakeLocked(false)
	r.mu.Unlock()

	if broadcast {
		r.monitor.defibrillate()
	}
	return nil
}

// OpenPrivateChannel creates the canonical narrowcast channel between a and
// b plus each side's mirror channel, and alerts both sides. The self-pair
// a==b degenerates to one counter bump, one mirror, and one alert.
func (r *Room) OpenPrivateChannel(a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pa, ok := r.players[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, a)
	}
	pb, ok := r.players[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, b)
	}
	if pa.numPrivate >= r.opts.MaxPrivateChannels {
		return fmt.Errorf("%w: %s", ErrChannelCapacity, a)
	}
	if pb.numPrivate >= r.opts.MaxPrivateChannels {
		return fmt.Errorf("%w: %s", ErrChannelCapacity, b)
	}
	id := pairID(a, b)
	if _, ok := r.channels[id]; ok {
		return fmt.Errorf("%w: %s", ErrChannelExists, id)
	}

	ch := newNarrowcastChannel(id, a, b)
	r.channels[id] = ch
	alert := Alert{Code: AlertNewChannel, ID: id, Members: ch.memberNames()}

	r.ensureMirrorLocked(a)
	pa.numPrivate++
	pa.pushAlert(alert)
	if a != b {
		r.ensureMirrorLocked(b)
		pb.numPrivate++
		pb.pushAlert(alert)
	}

	r.wakeLocked(false)
	r.log.Info("private channel opened", "room", r.ID, "channel", id)
	return nil
}

// ClosePrivateChannel removes the canonical channel and both mirror
// channels as one step under the room lock. Snoopers of each removed
// channel and both participants are alerted with DELETE_CHANNEL.
func (r *Room) ClosePrivateChannel(a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := pairID(a, b)
	if _, ok := r.channels[id]; !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}

	r.dropChannelLocked(id)
	r.dropChannelLocked(a)
	if a != b {
		r.dropChannelLocked(b)
	}

	if pa, ok := r.players[a]; ok {
		if pa.numPrivate > 0 {
			pa.numPrivate--
		}
		pa.pushAlert(Alert{Code: AlertDeleteChannel, ID: id})
	}
	if a != b {
		if pb, ok := r.players[b]; ok {
			if pb.numPrivate > 0 {
				pb.numPrivate--
			}
			pb.pushAlert(Alert{Code: AlertDeleteChannel, ID: id})
		}
	}

	r.wakeLocked(false)
	r.log.Info("private channel closed", "room", r.ID, "channel", id)
	return nil
}

// SnoopChannel grants name read access to an existing channel without
// making them a member, and confirms with a READ_CHANNEL alert.
func (r *Room) SnoopChannel(name, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[channelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	p, ok := r.players[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	ch.addSnooper(name)
	p.touch(time.Now())
	p.pushAlert(Alert{Code: AlertReadChannel, ID: channelID})
	r.wakeLocked(false)
	return nil
}

// Poll is the read side of the long-poll cycle. Pending alerts win over
// channel deltas; if neither exists and wait is positive the request parks
// and the returned WaitingRequest is non-nil. A ghost poller (empty name)
// only ever sees the roster: immediately when not waiting, otherwise on the
// next roster change.
func (r *Room) Poll(name string, cursors map[string]int, wait time.Duration) (PollPayload, *WaitingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		if wait <= 0 {
			return r.rosterLocked(), nil
		}
		return PollPayload{}, r.waiters.park("", nil, wait)
	}

	if p, ok := r.players[name]; ok {
		p.touch(time.Now())
	}
	payload := r.pollLocked(name, cursors)
	if !payload.Empty() || wait <= 0 {
		return payload, nil
	}
	return PollPayload{}, r.waiters.park(name, cursors, wait)
}

// Abandon drops a parked request whose client disconnected.
func (r *Room) Abandon(req *WaitingRequest) {
	r.waiters.abandon(req)
}

// Ping resolves every parked request in the room with whatever is currently
// available, falling back to a roster snapshot. Clients use it to nudge
// their own parked poll after naming themselves or leaving.
func (r *Room) Ping() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.waiters.wakeAll(func(req *WaitingRequest) PollPayload {
		if req.Name != "" {
			if p := r.pollLocked(req.Name, req.Cursors); !p.Empty() {
				return p
			}
		}
		return r.rosterLocked()
	})
}

// Roster returns the sorted player names.
func (r *Room) Roster() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked().Players
}

// evictIdle removes every player whose last activity predates cutoff,
// appends "went offline" messages to their channels, and broadcasts one
// aggregated PLAYER_LEAVE for the whole batch. Both presence sweeps funnel
// through here. Returns the evicted names.
func (r *Room) evictIdle(cutoff time.Time) []string {
	r.mu.Lock()
	var dead []string
	for name, p := range r.players {
		if p.LastActive.Before(cutoff) {
			dead = append(dead, name)
		}
	}
	sort.Strings(dead)
	for _, name := range dead {
		r.dropPlayerLocked(name, botOfflineText)
	}
	if len(dead) > 0 {
		r.broadcastLeaveLocked(dead)
	}
	empty := len(r.players) == 0
	r.mu.Unlock()

	if len(dead) > 0 {
		r.log.Info("players evicted", "room", r.ID, "players", dead)
	}
	if empty {
		r.teardown()
	}
	return dead
}

// teardown cancels the heartbeat, force-closes every parked request, and
// removes the room from its registry. Safe to reach from multiple paths;
// only the first wins.
func (r *Room) teardown() {
	r.closeOnce.Do(func() {
		r.monitor.stop()
		r.waiters.closeAll()
		if r.onEmpty != nil {
			r.onEmpty(r.ID)
		}
		r.log.Info("room torn down", "room", r.ID)
	})
}

// dropPlayerLocked deletes the player and writes their departure message to
// the public channel and every narrowcast channel they belonged to.
func (r *Room) dropPlayerLocked(name, format string) {
	if p, ok := r.players[name]; ok {
		p.Online = false
	}
	delete(r.players, name)

	msg := botMessage(format, name)
	r.channels[PublicChannelID].append(msg)
	for _, ch := range r.channels {
		if ch.Mode == ModeNarrowcast && ch.isMember(name) {
			ch.append(msg)
		}
	}
}

// dropChannelLocked removes a narrowcast channel and alerts its snoopers,
// who would otherwise keep polling a cursor for a log that no longer grows.
func (r *Room) dropChannelLocked(id string) {
	ch, ok := r.channels[id]
	if !ok || ch.Mode != ModeNarrowcast {
		return
	}
	delete(r.channels, id)
	for _, name := range ch.snooperNames() {
		if p, ok := r.players[name]; ok {
			p.pushAlert(Alert{Code: AlertDeleteChannel, ID: id})
		}
	}
}

func (r *Room) broadcastLeaveLocked(names []string) {
	for _, p := range r.players {
		p.pushAlert(Alert{Code: AlertPlayerLeave, Names: names})
	}
	r.wakeLocked(true)
}

func (r *Room) ensureMirrorLocked(name string) {
	if _, ok := r.channels[name]; ok {
		return
	}
	r.channels[name] = newNarrowcastChannel(name, name)
}

// pollLocked builds the response for a named poller: alerts first, then
// channel deltas, else empty. Taking the alerts clears them, so this is
// only called when the result is about to be delivered.
func (r *Room) pollLocked(name string, cursors map[string]int) PollPayload {
	if p, ok := r.players[name]; ok && p.hasAlerts() {
		return PollPayload{Type: PayloadAlert, Alerts: p.takeAlerts()}
	}
	if deltas := r.readChannelsLocked(name, cursors); len(deltas) > 0 {
		return PollPayload{Type: PayloadNewMessages, Channels: deltas}
	}
	return PollPayload{}
}

// readChannelsLocked returns the new suffix of every requested channel the
// poller may read. Channels that no longer exist are skipped: a client may
// legitimately still poll a cursor for a channel deleted under it.
func (r *Room) readChannelsLocked(name string, cursors map[string]int) map[string][]Message {
	var deltas map[string][]Message
	for id, cursor := range cursors {
		ch, ok := r.channels[id]
		if !ok || !ch.readableBy(name) {
			continue
		}
		if fresh := ch.messagesFrom(cursor); len(fresh) > 0 {
			if deltas == nil {
				deltas = make(map[string][]Message)
			}
			deltas[id] = fresh
		}
	}
	return deltas
}

func (r *Room) rosterLocked() PollPayload {
	names := make([]string, 0, len(r.players))
	for name := range r.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return PollPayload{Type: PayloadRoster, Players: names}
}

// wakeLocked re-evaluates every parked request after a mutation. Ghost
// pollers resolve only on roster changes; named pollers resolve when their
// own poll would now return data.
func (r *Room) wakeLocked(rosterChanged bool) {
	r.waiters.wake(func(req *WaitingRequest) (PollPayload, bool) {
		if req.Name == "" {
			if !rosterChanged {
				return PollPayload{}, false
			}
			return r.rosterLocked(), true
		}
		payload := r.pollLocked(req.Name, req.Cursors)
		if payload.Empty() {
			return PollPayload{}, false
		}
		return payload, true
	})
}
