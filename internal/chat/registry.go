package chat

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tunable defaults.
const (
	DefaultMaxPrivateChannels  = 3
	DefaultHeartbeatInterval   = 5 * time.Second
	DefaultIdleTimeout         = 120 * time.Second
	DefaultDefibrillationDelay = 10 * time.Second
)

// Options carries the per-room tunables. Zero fields take the defaults.
type Options struct {
	MaxPrivateChannels  int
	HeartbeatInterval   time.Duration
	IdleTimeout         time.Duration
	DefibrillationDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxPrivateChannels <= 0 {
		o.MaxPrivateChannels = DefaultMaxPrivateChannels
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.DefibrillationDelay <= 0 {
		o.DefibrillationDelay = DefaultDefibrillationDelay
	}
	return o
}

// Registry is the process-wide room directory. It is the only shared state
// between rooms; everything else lives inside a Room. Tests get isolation
// by constructing their own Registry.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	opts  Options
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger, opts Options) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		rooms: make(map[string]*Room),
		opts:  opts.withDefaults(),
		log:   log,
	}
}

// CreateRoom allocates a room holding only the public channel. The
// existence check and the insert happen under one lock, so concurrent
// creates of the same id cannot both win.
func (g *Registry) CreateRoom(id string) error {
	if err := validIdent(id); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[id]; ok {
		return fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	g.rooms[id] = newRoom(id, g.log, g.opts, g.dropRoom)
	g.log.Info("room created", "room", id)
	return nil
}

// Room resolves a room id.
func (g *Registry) Room(id string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return room, nil
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close tears down every room; used on server shutdown.
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	for _, room := range rooms {
		room.teardown()
	}
}

// dropRoom is the teardown callback; it runs without any room lock held.
func (g *Registry) dropRoom(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, id)
	g.log.Info("room removed", "room", id)
}
