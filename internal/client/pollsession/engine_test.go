package pollsession

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/livepoll/internal/client/db"
	"github.com/dmitrijs2005/livepoll/internal/client/deeplink"
	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/realtime"
	"github.com/dmitrijs2005/livepoll/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/livepoll/internal/client/services"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

// ---- fakes ----

type fakeAPI struct {
	mu         sync.Mutex
	polls      map[string]models.Poll
	getErr     error
	voteErr    error
	resultsErr error
	// bareVote makes SubmitVote answer without a tally.
	bareVote bool

	getGates map[string]chan struct{}
	voteGate chan struct{}

	getCalls, voteCalls, resultsCalls int
}

func newFakeAPI(polls ...models.Poll) *fakeAPI {
	f := &fakeAPI{polls: map[string]models.Poll{}, getGates: map[string]chan struct{}{}}
	for _, p := range polls {
		f.polls[p.ID] = p
	}
	return f
}

func (f *fakeAPI) GetPoll(_ context.Context, id string) (*models.Poll, error) {
	f.mu.Lock()
	f.getCalls++
	gate := f.getGates[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.polls[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &p, nil
}

func (f *fakeAPI) SubmitVote(_ context.Context, id string, req models.VoteRequest) (*models.VoteResponse, error) {
	f.mu.Lock()
	f.voteCalls++
	gate := f.voteGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voteErr != nil {
		return nil, f.voteErr
	}
	p := f.polls[id]
	results := p.InitialResults()
	for i := range results {
		if results[i].ID == req.OptionID {
			results[i].Votes++
		}
	}
	p.Results = results
	f.polls[id] = p
	if f.bareVote {
		return &models.VoteResponse{}, nil
	}
	return &models.VoteResponse{Results: append([]models.Option(nil), results...)}, nil
}

func (f *fakeAPI) GetResults(_ context.Context, id string) ([]models.Option, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultsCalls++
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	p := f.polls[id]
	return p.InitialResults(), nil
}

func (f *fakeAPI) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resultsCalls
}

func (f *fakeAPI) calls() (get, vote int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.voteCalls
}

type fakeChannel struct {
	mu  sync.Mutex
	log []string
}

func (c *fakeChannel) Subscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, "+"+id)
}

func (c *fakeChannel) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, "-"+id)
}

func (c *fakeChannel) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeIdentity struct {
	mu       sync.Mutex
	username string
}

func (i *fakeIdentity) Current() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.username, i.username != ""
}

func (i *fakeIdentity) set(u string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.username = u
}

// gatedStore holds Set until release is closed.
type gatedStore struct {
	next    deeplink.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return g.next.Get(ctx, key)
}

func (g *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.next.Set(ctx, key, value)
}

func (g *gatedStore) Delete(ctx context.Context, keys ...string) error {
	return g.next.Delete(ctx, keys...)
}

// ---- harness ----

type harness struct {
	engine   *Engine
	api      *fakeAPI
	channel  *fakeChannel
	identity *fakeIdentity
	ledger   services.VoteLedger
	location *deeplink.Location
	db       *sql.DB
}

func newHarness(t *testing.T, api *fakeAPI, username string) *harness {
	t.Helper()
	conn, err := db.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return newHarnessOn(t, conn, api, username)
}

func newHarnessOn(t *testing.T, conn *sql.DB, api *fakeAPI, username string) *harness {
	t.Helper()
	loc, err := deeplink.New("http://localhost:3000/", metadata.NewSQLiteRepository(conn))
	require.NoError(t, err)

	h := &harness{
		api:      api,
		channel:  &fakeChannel{},
		identity: &fakeIdentity{username: username},
		ledger:   services.NewVoteLedger(conn),
		location: loc,
		db:       conn,
	}
	h.engine = NewEngine(Deps{
		API:      api,
		Channel:  h.channel,
		Ledger:   h.ledger,
		Identity: h.identity,
		Location: loc,
	})
	return h
}

func testPoll(id, creator string) models.Poll {
	return models.Poll{
		ID:        id,
		Question:  "Question " + id,
		Options:   []models.Option{{ID: id + "-a", Text: "A"}, {ID: id + "-b", Text: "B"}},
		Results:   []models.Option{{ID: id + "-a", Text: "A", Votes: 2}, {ID: id + "-b", Text: "B", Votes: 1}},
		CreatedBy: creator,
		IsActive:  true,
	}
}

// ---- tests ----

func TestJoin_ActivatesSubscribesAndSetsLocation(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "carol")), "alice")

	require.NoError(t, h.engine.Join(context.Background(), "p1"))

	v := h.engine.View()
	assert.Equal(t, StateActive, v.State)
	require.NotNil(t, v.Poll)
	assert.Equal(t, "p1", v.Poll.ID)
	assert.False(t, v.ResultsVisible)
	assert.True(t, v.CanVote)
	assert.Equal(t, int64(3), v.Snapshot.Total())
	assert.Equal(t, "http://localhost:3000/?poll=p1", v.ShareLink)
	assert.Equal(t, []string{"+p1"}, h.channel.events())
	assert.Equal(t, "p1", h.location.PollID())
}

func TestJoin_EmptyID(t *testing.T) {
	h := newHarness(t, newFakeAPI(), "alice")
	require.ErrorIs(t, h.engine.Join(context.Background(), "  "), common.ErrValidation)
	get, _ := h.api.calls()
	assert.Zero(t, get)
}

func TestJoin_CreatorSeesResults(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "alice")), "alice")

	require.NoError(t, h.engine.Join(context.Background(), "p1"))

	v := h.engine.View()
	assert.Equal(t, StateResultsVisible, v.State)
	assert.True(t, v.ResultsVisible)
	assert.True(t, v.IsCreator)
	assert.True(t, v.CanVote)
}

func TestActivateCreated_AlwaysShowsResults(t *testing.T) {
	h := newHarness(t, newFakeAPI(), "alice")

	require.NoError(t, h.engine.ActivateCreated(context.Background(), testPoll("p1", "someone-else")))

	v := h.engine.View()
	assert.Equal(t, StateResultsVisible, v.State)
	assert.True(t, v.ResultsVisible)
	assert.False(t, v.HasVoted)
}

func TestJoin_SwitchingPollsMovesSubscription(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x"), testPoll("p2", "x")), "alice")
	ctx := context.Background()

	require.NoError(t, h.engine.Join(ctx, "p1"))
	require.NoError(t, h.engine.Join(ctx, "p2"))
	require.NoError(t, h.engine.Join(ctx, "p2"))

	assert.Equal(t, []string{"+p1", "-p1", "+p2", "+p2"}, h.channel.events())
	assert.Equal(t, "p2", h.engine.View().Poll.ID)
}

func TestJoin_FailureReturnsToPriorState(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))

	err := h.engine.Join(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	v := h.engine.View()
	assert.Equal(t, StateActive, v.State)
	require.NotNil(t, v.Poll)
	assert.Equal(t, "p1", v.Poll.ID)
	assert.ErrorIs(t, v.Err, common.ErrNotFound)
}

func TestJoin_FailureFromIdleIsIdle(t *testing.T) {
	api := newFakeAPI()
	api.getErr = common.ErrUnavailable
	h := newHarness(t, api, "alice")

	require.Error(t, h.engine.Join(context.Background(), "p1"))
	v := h.engine.View()
	assert.Equal(t, StateIdle, v.State)
	assert.ErrorIs(t, v.Err, common.ErrUnavailable)
}

func TestJoin_UnauthenticatedIsPendingUntilLogin(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "")
	ctx := context.Background()

	err := h.engine.Join(ctx, "p1")
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
	assert.Equal(t, "p1", h.engine.Pending())
	assert.Equal(t, "p1", h.location.PollID())
	get, _ := h.api.calls()
	assert.Zero(t, get)

	h.identity.set("alice")
	require.NoError(t, h.engine.ResumePending(ctx))

	v := h.engine.View()
	assert.Equal(t, StateActive, v.State)
	assert.Equal(t, "p1", v.Poll.ID)
	assert.Empty(t, h.engine.Pending())
}

func TestResumePending_NothingPending(t *testing.T) {
	h := newHarness(t, newFakeAPI(), "alice")
	require.NoError(t, h.engine.ResumePending(context.Background()))
	get, _ := h.api.calls()
	assert.Zero(t, get)
}

func TestJoin_LateLoadDoesNotOverwriteNewerPoll(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"), testPoll("p2", "x"))
	gate := make(chan struct{})
	api.getGates["p1"] = gate
	h := newHarness(t, api, "alice")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.engine.Join(ctx, "p1") }()
	require.Eventually(t, func() bool { return h.engine.View().State == StateLoading }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.Join(ctx, "p2"))
	close(gate)
	require.NoError(t, <-done)

	v := h.engine.View()
	assert.Equal(t, "p2", v.Poll.ID)
	assert.Equal(t, []string{"+p2"}, h.channel.events())
}

func TestSubmitVote_EmptyOptionMakesNoNetworkCall(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	require.NoError(t, h.engine.Join(context.Background(), "p1"))

	err := h.engine.SubmitVote(context.Background(), "")
	require.ErrorIs(t, err, common.ErrValidation)
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "option", ve.Field)

	_, votes := h.api.calls()
	assert.Zero(t, votes)
}

func TestSubmitVote_ForeignOption(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	require.NoError(t, h.engine.Join(context.Background(), "p1"))

	require.ErrorIs(t, h.engine.SubmitVote(context.Background(), "p2-a"), common.ErrValidation)
	_, votes := h.api.calls()
	assert.Zero(t, votes)
}

func TestSubmitVote_NoActivePoll(t *testing.T) {
	h := newHarness(t, newFakeAPI(), "alice")
	require.ErrorIs(t, h.engine.SubmitVote(context.Background(), "a"), common.ErrNoActivePoll)
}

func TestSubmitVote_SuccessConservesVotes(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))
	before := h.engine.View().Snapshot.Total()

	require.NoError(t, h.engine.SubmitVote(ctx, "p1-b"))

	v := h.engine.View()
	assert.Equal(t, StateVoted, v.State)
	assert.True(t, v.HasVoted)
	assert.True(t, v.ResultsVisible)
	assert.False(t, v.CanVote)
	assert.Equal(t, before+1, v.Snapshot.Total())
	assert.Equal(t, int64(2), v.Snapshot.Results[1].Votes)

	voted, err := h.ledger.HasVoted(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestSubmitVote_ResponseWithoutTallyKeepsSnapshotAndRefetches(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	api.bareVote = true
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))
	before := h.engine.View().Snapshot.Total()

	require.NoError(t, h.engine.SubmitVote(ctx, "p1-a"))

	v := h.engine.View()
	assert.Equal(t, StateVoted, v.State)
	assert.Len(t, v.Snapshot.Results, 2)
	assert.Equal(t, before+1, v.Snapshot.Total())
	assert.Equal(t, 1, api.refreshes())
}

func TestSubmitVote_ResponseWithoutTallyAndFailedRefetch(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	api.bareVote = true
	api.resultsErr = common.ErrServer
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))
	before := h.engine.View().Snapshot

	require.NoError(t, h.engine.SubmitVote(ctx, "p1-a"))

	v := h.engine.View()
	assert.Equal(t, StateVoted, v.State)
	assert.Equal(t, before.Results, v.Snapshot.Results)
	voted, err := h.ledger.HasVoted(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestSubmitVote_LedgerSuppressesAcrossRestart(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	first := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, first.engine.Join(ctx, "p1"))
	require.NoError(t, first.engine.SubmitVote(ctx, "p1-a"))

	// Same database, fresh process state.
	second := newHarnessOn(t, first.db, api, "alice")
	require.NoError(t, second.engine.Join(ctx, "p1"))

	v := second.engine.View()
	assert.Equal(t, StateVoted, v.State)
	assert.True(t, v.ResultsVisible)

	require.ErrorIs(t, second.engine.SubmitVote(ctx, "p1-b"), common.ErrValidation)
	_, votes := api.calls()
	assert.Equal(t, 1, votes)
}

func TestSubmitVote_SecondVoteAfterActivationRejected(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x"), testPoll("p2", "x")), "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))
	require.NoError(t, h.engine.SubmitVote(ctx, "p1-a"))
	require.NoError(t, h.engine.Join(ctx, "p2"))
	require.NoError(t, h.engine.Join(ctx, "p1"))

	require.ErrorIs(t, h.engine.SubmitVote(ctx, "p1-a"), common.ErrValidation)
}

func TestSubmitVote_ClosedPolls(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	inactive := testPoll("p1", "x")
	inactive.IsActive = false
	notStarted := testPoll("p2", "x")
	notStarted.StartAt = &future
	ended := testPoll("p3", "x")
	ended.ActiveUntil = &past

	for _, p := range []models.Poll{inactive, notStarted, ended} {
		t.Run(p.ID, func(t *testing.T) {
			h := newHarness(t, newFakeAPI(p), "alice")
			require.NoError(t, h.engine.Join(context.Background(), p.ID))
			assert.False(t, h.engine.View().CanVote)

			err := h.engine.SubmitVote(context.Background(), p.ID+"-a")
			require.ErrorIs(t, err, common.ErrValidation)
			_, votes := h.api.calls()
			assert.Zero(t, votes)
		})
	}
}

func TestSubmitVote_InFlightRejected(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	api.voteGate = make(chan struct{})
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))

	done := make(chan error, 1)
	go func() { done <- h.engine.SubmitVote(ctx, "p1-a") }()
	require.Eventually(t, func() bool { return h.engine.View().Voting }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, h.engine.SubmitVote(ctx, "p1-b"), common.ErrValidation)

	close(api.voteGate)
	require.NoError(t, <-done)
	_, votes := api.calls()
	assert.Equal(t, 1, votes)
}

func TestSubmitVote_LateResponseDoesNotTouchNewPoll(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"), testPoll("p2", "x"))
	api.voteGate = make(chan struct{})
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))

	done := make(chan error, 1)
	go func() { done <- h.engine.SubmitVote(ctx, "p1-a") }()
	require.Eventually(t, func() bool { return h.engine.View().Voting }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.Join(ctx, "p2"))
	before := h.engine.View().Snapshot

	close(api.voteGate)
	require.NoError(t, <-done)

	v := h.engine.View()
	assert.Equal(t, "p2", v.Poll.ID)
	assert.Equal(t, before.Results, v.Snapshot.Results)
	assert.False(t, v.HasVoted)

	voted, err := h.ledger.HasVoted(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, voted, "ledger is written even after navigating away")
}

func TestSubmitVote_ServerErrorKeepsSnapshot(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))
	before := h.engine.View().Snapshot

	api.voteErr = common.ErrServer
	require.ErrorIs(t, h.engine.SubmitVote(ctx, "p1-a"), common.ErrServer)

	v := h.engine.View()
	assert.Equal(t, StateActive, v.State)
	assert.Equal(t, before.Results, v.Snapshot.Results)
	assert.ErrorIs(t, v.Err, common.ErrServer)
	assert.True(t, v.CanVote, "a failed vote may be retried")
}

func TestSubmitVote_ConflictRecordsVote(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	api.voteErr = errors.Join(errors.New("already voted"), common.ErrConflict)
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))

	require.ErrorIs(t, h.engine.SubmitVote(ctx, "p1-a"), common.ErrConflict)

	v := h.engine.View()
	assert.True(t, v.HasVoted)
	assert.Equal(t, StateVoted, v.State)
	voted, err := h.ledger.HasVoted(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestHandleEvent_OnlyActivePoll(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	require.NoError(t, h.engine.Join(context.Background(), "p1"))
	at := time.Now().Add(time.Minute)

	h.engine.HandleEvent(realtime.ResultsUpdated{
		PollID:   "p2",
		Snapshot: models.NewSnapshot([]models.Option{{ID: "x", Votes: 100}}, at),
	})
	assert.Equal(t, int64(3), h.engine.View().Snapshot.Total())

	h.engine.HandleEvent(realtime.ResultsUpdated{
		PollID:   "p1",
		Snapshot: models.NewSnapshot([]models.Option{{ID: "p1-a", Text: "A", Votes: 5}, {ID: "p1-b", Text: "B", Votes: 5}}, at),
	})
	v := h.engine.View()
	assert.Equal(t, int64(10), v.Snapshot.Total())
	assert.True(t, v.Snapshot.UpdatedAt.Equal(at))

	h.engine.HandleEvent(realtime.PollCreated{Poll: testPoll("p9", "x")})
	assert.Equal(t, "p1", h.engine.View().Poll.ID)
}

func TestHandleEvent_Idle(t *testing.T) {
	h := newHarness(t, newFakeAPI(), "alice")
	h.engine.HandleEvent(realtime.ResultsUpdated{PollID: "p1"})
	assert.Equal(t, StateIdle, h.engine.View().State)
}

func TestRefreshResults(t *testing.T) {
	api := newFakeAPI(testPoll("p1", "x"))
	h := newHarness(t, api, "alice")
	ctx := context.Background()
	require.NoError(t, h.engine.Join(ctx, "p1"))

	api.mu.Lock()
	p := api.polls["p1"]
	p.Results = []models.Option{{ID: "p1-a", Text: "A", Votes: 7}, {ID: "p1-b", Text: "B", Votes: 1}}
	api.polls["p1"] = p
	api.mu.Unlock()

	require.NoError(t, h.engine.RefreshResults(ctx))
	assert.Equal(t, int64(8), h.engine.View().Snapshot.Total())

	api.mu.Lock()
	api.resultsErr = common.ErrUnavailable
	api.mu.Unlock()

	require.ErrorIs(t, h.engine.RefreshResults(ctx), common.ErrUnavailable)
	v := h.engine.View()
	assert.Equal(t, int64(8), v.Snapshot.Total(), "last good snapshot is kept")
	assert.ErrorIs(t, v.Err, common.ErrUnavailable)
}

func TestRefreshResults_NoActivePoll(t *testing.T) {
	h := newHarness(t, newFakeAPI(), "alice")
	require.ErrorIs(t, h.engine.RefreshResults(context.Background()), common.ErrNoActivePoll)
}

func TestDeactivate(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	ctx := context.Background()

	require.NoError(t, h.engine.Join(ctx, "p1"))
	require.NoError(t, h.engine.Deactivate(ctx, false))
	assert.Equal(t, StateIdle, h.engine.View().State)
	assert.Equal(t, "p1", h.location.PollID())

	require.NoError(t, h.engine.Join(ctx, "p1"))
	require.NoError(t, h.engine.Deactivate(ctx, true))
	assert.Empty(t, h.location.PollID())
	assert.Equal(t, []string{"+p1", "-p1", "+p1", "-p1"}, h.channel.events())
}

func TestReset_ClearsPendingAndActive(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "")
	ctx := context.Background()
	require.ErrorIs(t, h.engine.Join(ctx, "p1"), common.ErrNotAuthenticated)

	h.engine.Reset()
	assert.Empty(t, h.engine.Pending())
	assert.Equal(t, StateIdle, h.engine.View().State)
}

func TestJoin_LocationWriteDoesNotBlockEngine(t *testing.T) {
	conn, err := db.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	store := &gatedStore{
		next:    metadata.NewSQLiteRepository(conn),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	loc, err := deeplink.New("http://localhost:3000/", store)
	require.NoError(t, err)
	e := NewEngine(Deps{
		API:      newFakeAPI(testPoll("p1", "x")),
		Channel:  &fakeChannel{},
		Ledger:   services.NewVoteLedger(conn),
		Identity: &fakeIdentity{username: "alice"},
		Location: loc,
	})

	done := make(chan error, 1)
	go func() { done <- e.Join(context.Background(), "p1") }()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("location was never written")
	}

	views := make(chan View, 1)
	go func() { views <- e.View() }()
	select {
	case v := <-views:
		assert.Equal(t, StateActive, v.State)
	case <-time.After(time.Second):
		t.Fatal("View blocked behind a storage write")
	}

	close(store.release)
	require.NoError(t, <-done)
	assert.Equal(t, "p1", loc.PollID())
}

func TestViewIsACopy(t *testing.T) {
	h := newHarness(t, newFakeAPI(testPoll("p1", "x")), "alice")
	require.NoError(t, h.engine.Join(context.Background(), "p1"))

	v := h.engine.View()
	v.Poll.Options[0].Text = "mutated"
	v.Snapshot.Results[0].Votes = 999

	again := h.engine.View()
	assert.Equal(t, "A", again.Poll.Options[0].Text)
	assert.Equal(t, int64(2), again.Snapshot.Results[0].Votes)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "results-visible", StateResultsVisible.String())
	assert.Equal(t, "state(9)", State(9).String())
}
