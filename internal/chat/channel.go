package chat

// Channel is an append-only, cursor-readable message log. Broadcast channels
// are implicitly readable by the whole room; narrowcast channels restrict
// reads to a fixed member set plus any snoopers granted access later.
//
// Channels carry no lock of their own: every access happens under the lock
// of the owning Room.
type Channel struct {
	ID       string
	Mode     string
	messages []Message
	members  map[string]struct{} // nil for broadcast channels
	snoopers map[string]struct{}
}

func newBroadcastChannel(id string) *Channel {
	return &Channel{ID: id, Mode: ModeBroadcast, snoopers: make(map[string]struct{})}
}

func newNarrowcastChannel(id string, members ...string) *Channel {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return &Channel{ID: id, Mode: ModeNarrowcast, members: set, snoopers: make(map[string]struct{})}
}

func (c *Channel) append(msg Message) {
	c.messages = append(c.messages, msg)
}

// messagesFrom returns a copy of the log suffix starting at cursor. Reads
// are idempotent: the same cursor yields the same suffix until new appends.
func (c *Channel) messagesFrom(cursor int) []Message {
	if cursor >= len(c.messages) {
		return nil
	}
	if cursor < 0 {
		cursor = 0
	}
	out := make([]Message, len(c.messages)-cursor)
	copy(out, c.messages[cursor:])
	return out
}

func (c *Channel) size() int { return len(c.messages) }

func (c *Channel) isMember(name string) bool {
	_, ok := c.members[name]
	return ok
}

// readableBy reports whether name may read this channel: every player reads
// broadcast channels; narrowcast channels require membership or a snoop
// grant.
func (c *Channel) readableBy(name string) bool {
	if c.Mode == ModeBroadcast {
		return true
	}
	if c.isMember(name) {
		return true
	}
	_, ok := c.snoopers[name]
	return ok
}

func (c *Channel) addSnooper(name string) {
	c.snoopers[name] = struct{}{}
}

func (c *Channel) memberNames() []string {
	return sortedNames(c.members)
}

func (c *Channel) snooperNames() []string {
	return sortedNames(c.snoopers)
}
