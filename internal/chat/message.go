// Package chat implements the room/channel coordination core: rooms holding
// players and message channels, long-poll request parking and wakeup, private
// channel negotiation, and liveness sweeps. All state is in memory; the HTTP
// layer in internal/handlers is a thin shell over the operations here.
package chat

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Channel delivery modes.
const (
	ModeBroadcast  = "broadcast"
	ModeNarrowcast = "narrowcast"
)

// Message kinds.
const (
	KindHuman = "HUMAN"
	KindBot   = "BOT"
)

const (
	// PublicChannelID is the room-wide channel every room carries for its
	// whole lifetime.
	PublicChannelID = "public"

	// Everyone is the recipient sentinel that routes a message to the
	// public channel.
	Everyone = "everyone"

	// botName is the sender of server-generated courtesy messages.
	botName = "*"

	// redacted replaces the recipient on mirror copies of outgoing
	// private messages.
	redacted = "*"
)

// Message is a single chat message as it appears on the wire and in a
// channel's log.
type Message struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Alert codes, delivered out-of-band from channel messages.
const (
	AlertPlayerJoin    = "PLAYER_JOIN"
	AlertPlayerLeave   = "PLAYER_LEAVE"
	AlertNewChannel    = "NEW_CHANNEL"
	AlertDeleteChannel = "DELETE_CHANNEL"
	AlertReadChannel   = "READ_CHANNEL"
)

// Alert is a typed per-player notification. Which fields are set depends on
// the code: PLAYER_JOIN carries Name, PLAYER_LEAVE carries Names, the
// channel lifecycle codes carry ID (and Members for NEW_CHANNEL).
type Alert struct {
	Code    string   `json:"code"`
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Names   []string `json:"names,omitempty"`
	Members []string `json:"members,omitempty"`
}

// Poll payload discriminators.
const (
	PayloadAlert       = "ALERT"
	PayloadNewMessages = "NEW_MESSAGES"
	PayloadRoster      = "ROSTER"
)

// PollPayload is the body of a successful poll response, tagged by Type.
// The zero value (empty Type) means "nothing new" and is rendered as 204.
type PollPayload struct {
	Type     string               `json:"type"`
	Alerts   []Alert              `json:"alerts,omitempty"`
	Channels map[string][]Message `json:"channels,omitempty"`
	Players  []string             `json:"players,omitempty"`
}

// Empty reports whether the payload carries no data.
func (p PollPayload) Empty() bool { return p.Type == "" }

// Courtesy messages appended by the server on roster changes.
const (
	botJoinedText  = "%s has joined the room"
	botLeftText    = "%s has left the room"
	botOfflineText = "%s went offline"
)

func botMessage(format, name string) Message {
	return Message{Text: fmt.Sprintf(format, name), From: botName, To: Everyone, Kind: KindBot}
}

var identPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Room and player names share one grammar. "public" and "everyone" are
// reserved as the public channel id and the broadcast recipient sentinel.
func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q must consist of letters and digits", ErrInvalidIdent, name)
	}
	if name == PublicChannelID || name == Everyone {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidIdent, name)
	}
	return nil
}

// pairID builds the canonical id of a private channel between two players.
// The pair is sorted so the id does not depend on who initiated.
func pairID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseCursors decodes the poll "channels" query parameter, a comma list of
// channelId:cursor items. Channel ids may contain '|' but never ':'.
func ParseCursors(raw string) (map[string]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	cursors := make(map[string]int)
	for _, item := range strings.Split(raw, ",") {
		sep := strings.LastIndex(item, ":")
		if sep <= 0 {
			return nil, fmt.Errorf("%w: malformed channel cursor %q", ErrInvalidIdent, item)
		}
		id := item[:sep]
		cursor, err := strconv.Atoi(item[sep+1:])
		if err != nil || cursor < 0 {
			return nil, fmt.Errorf("%w: malformed channel cursor %q", ErrInvalidIdent, item)
		}
		cursors[id] = cursor
	}
	return cursors, nil
}
