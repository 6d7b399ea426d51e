package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	g := NewRegistry(testLogger, Options{
		HeartbeatInterval: time.Hour,
		IdleTimeout:       time.Hour,
	})
	t.Cleanup(g.Close)
	return g
}

func TestRegistryCreateAndLookup(t *testing.T) {
	g := testRegistry(t)

	require.NoError(t, g.CreateRoom("alpha"))
	assert.ErrorIs(t, g.CreateRoom("alpha"), ErrRoomExists)
	assert.ErrorIs(t, g.CreateRoom("no spaces"), ErrInvalidIdent)
	assert.ErrorIs(t, g.CreateRoom("public"), ErrInvalidIdent)

	room, err := g.Room("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", room.ID)
	assert.Equal(t, 1, g.Len())

	_, err = g.Room("beta")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistryDropsEmptiedRoom(t *testing.T) {
	g := testRegistry(t)
	require.NoError(t, g.CreateRoom("alpha"))
	room, err := g.Room("alpha")
	require.NoError(t, err)

	require.NoError(t, room.AddPlayer("bob"))
	require.NoError(t, room.RemovePlayer("bob"))

	_, err = g.Room("alpha")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, 0, g.Len())

	// the id is free again once the room is gone
	assert.NoError(t, g.CreateRoom("alpha"))
}

func TestRegistryCloseTearsDownRooms(t *testing.T) {
	g := NewRegistry(testLogger, Options{HeartbeatInterval: time.Hour, IdleTimeout: time.Hour})
	require.NoError(t, g.CreateRoom("alpha"))
	require.NoError(t, g.CreateRoom("beta"))

	room, err := g.Room("alpha")
	require.NoError(t, err)
	require.NoError(t, room.AddPlayer("bob"))
	_, parked := room.Poll("bob", map[string]int{PublicChannelID: 1}, time.Minute)
	require.NotNil(t, parked)

	g.Close()
	assert.True(t, receive(t, parked).Empty(), "shutdown force-closes parked polls")
	assert.Equal(t, 0, g.Len())
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxPrivateChannels, opts.MaxPrivateChannels)
	assert.Equal(t, DefaultHeartbeatInterval, opts.HeartbeatInterval)
	assert.Equal(t, DefaultIdleTimeout, opts.IdleTimeout)
	assert.Equal(t, DefaultDefibrillationDelay, opts.DefibrillationDelay)

	custom := Options{MaxPrivateChannels: 5}.withDefaults()
	assert.Equal(t, 5, custom.MaxPrivateChannels)
}
