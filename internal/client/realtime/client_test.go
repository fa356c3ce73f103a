package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/testutil"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestClient(t *testing.T, srv *testutil.Server, opts ...Option) (*Client, chan Event) {
	t.Helper()
	base := []Option{WithReconnect(3, 20*time.Millisecond)}
	c := New(srv.RealtimeURL(), append(base, opts...)...)
	events := make(chan Event, 16)
	c.OnEvent(func(ev Event) { events <- ev })
	t.Cleanup(c.Disconnect)
	return c, events
}

func next(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for realtime event")
		return nil
	}
}

func TestConnectSubscribeAndReceive(t *testing.T) {
	srv := testutil.NewServer(t)
	c, events := newTestClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())

	c.Subscribe("p1")
	require.Eventually(t, func() bool { return srv.RoomSize("p1") == 1 }, waitFor, tick)

	srv.Broadcast("p1", "resultsUpdated", map[string]any{
		"pollId":  "p1",
		"results": []models.Option{{ID: "a", Text: "A", Votes: 2}, {ID: "b", Text: "B", Votes: 1}},
	})

	ev := next(t, events)
	ru, ok := ev.(ResultsUpdated)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "p1", ru.PollID)
	assert.Equal(t, int64(3), ru.Snapshot.Total())
	assert.False(t, ru.Snapshot.UpdatedAt.IsZero())
}

func TestSubscribeBeforeConnectIsSentOnConnect(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv)

	c.Subscribe("p1")
	c.Subscribe("p2")
	assert.Equal(t, []string{"p1", "p2"}, c.Rooms())
	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return srv.RoomSize("p1") == 1 && srv.RoomSize("p2") == 1
	}, waitFor, tick)
}

func TestUnsubscribeLeavesRoom(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	c.Subscribe("p1")
	require.Eventually(t, func() bool { return srv.RoomSize("p1") == 1 }, waitFor, tick)

	c.Unsubscribe("p1")
	require.Eventually(t, func() bool { return srv.RoomSize("p1") == 0 }, waitFor, tick)
	assert.Empty(t, c.Rooms())
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, waitFor, tick)
}

func TestReconnectRejoinsRooms(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	c.Subscribe("p1")
	require.Eventually(t, func() bool { return srv.RoomSize("p1") == 1 }, waitFor, tick)

	srv.DropConnections()

	require.Eventually(t, func() bool {
		return c.State() == StateConnected && srv.RoomSize("p1") == 1
	}, waitFor, tick)
}

func TestReconnectBudgetExhaustedGoesDown(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv, WithReconnect(2, 10*time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))

	srv.SetRealtimeDown(true)
	srv.DropConnections()

	require.Eventually(t, func() bool { return c.State() == StateDown }, waitFor, tick)

	// Down is sticky until an explicit Connect.
	srv.SetRealtimeDown(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDown, c.State())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
}

func TestConnectFailureStartsReconnect(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.SetRealtimeDown(true)
	c, _ := newTestClient(t, srv, WithReconnect(20, 10*time.Millisecond))

	require.Error(t, c.Connect(context.Background()))

	srv.SetRealtimeDown(false)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)
}

func TestDisconnectStopsReconnection(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv, WithReconnect(5, 300*time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))

	srv.DropConnections()
	require.Eventually(t, func() bool { return c.State() == StateReconnecting }, waitFor, tick)

	c.Disconnect()
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Zero(t, srv.Connections())
}

func TestDisconnectAndRearm(t *testing.T) {
	srv := testutil.NewServer(t)
	c, _ := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	c.Subscribe("p1")

	c.DisconnectAndRearm(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())

	require.Eventually(t, func() bool {
		return c.State() == StateConnected && srv.RoomSize("p1") == 1
	}, waitFor, tick)
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	srv := testutil.NewServer(t)
	c, events := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, waitFor, tick)

	srv.SendRaw(`not json`)
	srv.SendRaw(`{"event":"resultsUpdated","data":{"results":[]}}`)
	srv.SendRaw(`{"event":"somethingElse","data":1}`)
	srv.Broadcast("", "pollCreated", models.Poll{ID: "p9", Question: "New?", CreatedBy: "alice"})

	ev := next(t, events)
	pc, ok := ev.(PollCreated)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "p9", pc.Poll.ID)
	assert.Equal(t, "alice", pc.Poll.CreatedBy)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "down", StateDown.String())
	assert.Equal(t, "state(42)", State(42).String())
}
