package pollsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/realtime"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

type fakeLister struct {
	polls []models.Poll
	err   error
}

func (f *fakeLister) ListPolls(context.Context) ([]models.Poll, error) {
	return f.polls, f.err
}

func TestDashboard_LoadFiltersOwnPollsAndCountsStats(t *testing.T) {
	closed := testPoll("p2", "alice")
	closed.IsActive = false
	lister := &fakeLister{polls: []models.Poll{
		testPoll("p1", "alice"),
		closed,
		testPoll("p3", "bob"),
	}}
	d := NewDashboard(lister)

	require.NoError(t, d.Load(context.Background(), "alice"))

	polls := d.Polls()
	require.Len(t, polls, 2)
	assert.Equal(t, "p1", polls[0].ID)
	assert.Equal(t, "p2", polls[1].ID)

	assert.Equal(t, Stats{TotalPolls: 2, TotalVotes: 6, ActivePolls: 1}, d.Stats())
}

func TestDashboard_LoadFailureKeepsList(t *testing.T) {
	lister := &fakeLister{polls: []models.Poll{testPoll("p1", "alice")}}
	d := NewDashboard(lister)
	require.NoError(t, d.Load(context.Background(), "alice"))

	lister.err = common.ErrUnavailable
	require.ErrorIs(t, d.Load(context.Background(), "alice"), common.ErrUnavailable)
	assert.Len(t, d.Polls(), 1)
}

func TestDashboard_EmptyStats(t *testing.T) {
	d := NewDashboard(&fakeLister{})
	require.NoError(t, d.Load(context.Background(), "alice"))
	assert.Equal(t, Stats{}, d.Stats())
	assert.Empty(t, d.Polls())
}

func TestDashboard_PollCreated(t *testing.T) {
	d := NewDashboard(&fakeLister{})

	// Nobody logged in yet.
	d.HandlePollCreated(testPoll("p0", "alice"))
	assert.Empty(t, d.Polls())

	require.NoError(t, d.Load(context.Background(), "alice"))

	d.HandleEvent(realtime.PollCreated{Poll: testPoll("p1", "alice")})
	d.HandleEvent(realtime.PollCreated{Poll: testPoll("p1", "alice")})
	d.HandleEvent(realtime.PollCreated{Poll: testPoll("p2", "bob")})

	polls := d.Polls()
	require.Len(t, polls, 1)
	assert.Equal(t, "p1", polls[0].ID)
	assert.Equal(t, 1, d.Stats().ActivePolls)
}

func TestDashboard_ResultsUpdatedRefreshesOwnPoll(t *testing.T) {
	d := NewDashboard(&fakeLister{polls: []models.Poll{testPoll("p1", "alice")}})
	require.NoError(t, d.Load(context.Background(), "alice"))

	d.HandleEvent(realtime.ResultsUpdated{
		PollID:   "p1",
		Snapshot: models.NewSnapshot([]models.Option{{ID: "p1-a", Votes: 10}, {ID: "p1-b", Votes: 5}}, time.Now()),
	})
	d.HandleEvent(realtime.ResultsUpdated{
		PollID:   "other",
		Snapshot: models.NewSnapshot([]models.Option{{ID: "x", Votes: 100}}, time.Now()),
	})

	assert.Equal(t, int64(15), d.Stats().TotalVotes)
}

func TestDashboard_Reset(t *testing.T) {
	d := NewDashboard(&fakeLister{polls: []models.Poll{testPoll("p1", "alice")}})
	require.NoError(t, d.Load(context.Background(), "alice"))

	d.Reset()
	assert.Empty(t, d.Polls())

	d.HandlePollCreated(testPoll("p2", "alice"))
	assert.Empty(t, d.Polls())
}
