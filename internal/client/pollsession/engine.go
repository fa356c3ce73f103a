// Package pollsession tracks the poll the client is viewing: loading it,
// voting, results visibility, and live result updates from the realtime
// channel.
//
// All mutations run under Engine.mu. Network and storage calls are made with
// the lock released; their results are applied only if the poll they were
// issued for is still the active one. Room changes on the channel stay under
// the lock so subscribe and unsubscribe reach the channel in state order.
package pollsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/realtime"
	"github.com/dmitrijs2005/livepoll/internal/common"
	"github.com/dmitrijs2005/livepoll/internal/logging"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	// StateActive: poll loaded, results hidden until the user votes.
	StateActive
	StateVoted
	// StateResultsVisible: results shown without a vote (creator view).
	StateResultsVisible
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateVoted:
		return "voted"
	case StateResultsVisible:
		return "results-visible"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type PollAPI interface {
	GetPoll(ctx context.Context, pollID string) (*models.Poll, error)
	SubmitVote(ctx context.Context, pollID string, req models.VoteRequest) (*models.VoteResponse, error)
	GetResults(ctx context.Context, pollID string) ([]models.Option, error)
}

type Channel interface {
	Subscribe(pollID string)
	Unsubscribe(pollID string)
}

type Ledger interface {
	HasVoted(ctx context.Context, username, pollID string) (bool, error)
	MarkVoted(ctx context.Context, username, pollID string) error
}

type Identity interface {
	Current() (string, bool)
}

type Location interface {
	SetPoll(ctx context.Context, pollID string) error
	ClearPoll(ctx context.Context) error
	ShareLink(pollID string) string
}

// Deps are the collaborators of an Engine.
type Deps struct {
	API      PollAPI
	Channel  Channel
	Ledger   Ledger
	Identity Identity
	Location Location
	Logger   logging.Logger
	Now      func() time.Time
}

type session struct {
	poll        models.Poll
	snapshot    models.ResultSnapshot
	voted       bool
	creatorView bool
	voting      bool
}

func (s *session) visible(username string) bool {
	return s.voted || s.creatorView || (username != "" && s.poll.CreatedBy == username)
}

type Engine struct {
	api      PollAPI
	channel  Channel
	ledger   Ledger
	identity Identity
	location Location
	log      logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	gen     uint64
	loading bool
	active  *session
	pending string
	err     error
	// locSeq numbers location changes in the order they were decided.
	// Changes at or below locFloor were abandoned by Reset.
	locSeq   uint64
	locFloor uint64

	// persistMu orders location writes; locWritten is the last applied seq.
	persistMu  sync.Mutex
	locWritten uint64
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		api:      d.API,
		channel:  d.Channel,
		ledger:   d.Ledger,
		identity: d.Identity,
		location: d.Location,
		log:      d.Logger,
		now:      d.Now,
	}
	if e.log == nil {
		e.log = logging.Nop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Join loads pollID and activates it. Without a logged-in user the id is
// kept pending (and in the location) and ErrNotAuthenticated is returned;
// ResumePending replays it after login.
func (e *Engine) Join(ctx context.Context, pollID string) error {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return common.NewValidationError("poll", "please enter a poll code")
	}

	if _, ok := e.identity.Current(); !ok {
		e.mu.Lock()
		e.pending = pollID
		seq := e.nextLocSeqLocked()
		e.mu.Unlock()
		if err := e.persistLocation(ctx, seq, pollID); err != nil {
			e.log.Warn(ctx, "persist pending poll", "poll_id", pollID, "error", err)
		}
		return common.ErrNotAuthenticated
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.loading = true
	e.pending = ""
	e.err = nil
	e.mu.Unlock()

	p, err := e.api.GetPoll(ctx, pollID)
	if err != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.loading = false
			e.err = err
		}
		e.mu.Unlock()
		e.log.Warn(ctx, "join poll failed", "poll_id", pollID, "error", err)
		return fmt.Errorf("load poll %s: %w", pollID, err)
	}
	return e.activate(ctx, *p, false, gen)
}

// ResumePending joins the poll recorded by an unauthenticated Join.
func (e *Engine) ResumePending(ctx context.Context) error {
	e.mu.Lock()
	pollID := e.pending
	e.mu.Unlock()
	if pollID == "" {
		return nil
	}
	return e.Join(ctx, pollID)
}

// Activate shows poll. Results are visible if the user already voted or
// created it.
func (e *Engine) Activate(ctx context.Context, poll models.Poll) error {
	return e.activate(ctx, poll, false, 0)
}

// ActivateCreated shows a poll the user just created, results always
// visible.
func (e *Engine) ActivateCreated(ctx context.Context, poll models.Poll) error {
	return e.activate(ctx, poll, true, 0)
}

// activate installs poll as the active session. A non-zero gen ties the
// call to a Join; it is dropped when another navigation happened since.
func (e *Engine) activate(ctx context.Context, poll models.Poll, creatorView bool, gen uint64) error {
	username, _ := e.identity.Current()
	voted, lerr := e.ledger.HasVoted(ctx, username, poll.ID)

	e.mu.Lock()
	if gen != 0 && e.gen != gen {
		e.mu.Unlock()
		e.log.Debug(ctx, "dropping superseded poll load", "poll_id", poll.ID)
		return nil
	}
	if lerr != nil {
		e.loading = false
		e.err = lerr
		e.mu.Unlock()
		return lerr
	}

	e.gen++
	if prev := e.active; prev != nil && prev.poll.ID != poll.ID {
		e.channel.Unsubscribe(prev.poll.ID)
	}
	e.active = &session{
		poll:        poll,
		snapshot:    models.NewSnapshot(poll.InitialResults(), e.now()),
		voted:       voted,
		creatorView: creatorView,
	}
	e.loading = false
	e.pending = ""
	e.err = nil
	e.channel.Subscribe(poll.ID)
	visible := e.active.visible(username)
	seq := e.nextLocSeqLocked()
	e.mu.Unlock()

	if err := e.persistLocation(ctx, seq, poll.ID); err != nil {
		e.log.Warn(ctx, "persist location", "poll_id", poll.ID, "error", err)
	}

	e.log.Info(ctx, "poll activated", "poll_id", poll.ID, "voted", voted,
		"results_visible", visible)
	return nil
}

// Deactivate leaves the active poll. toTop also clears the poll from the
// location and forgets a pending join.
func (e *Engine) Deactivate(ctx context.Context, toTop bool) error {
	e.mu.Lock()
	e.leaveLocked()
	if !toTop {
		e.mu.Unlock()
		return nil
	}
	e.pending = ""
	seq := e.nextLocSeqLocked()
	e.mu.Unlock()

	if err := e.persistLocation(ctx, seq, ""); err != nil {
		return fmt.Errorf("clear location: %w", err)
	}
	return nil
}

// Reset drops all poll state without touching the persisted location.
// Location writes still in flight are abandoned.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaveLocked()
	e.pending = ""
	e.locFloor = e.locSeq
}

func (e *Engine) nextLocSeqLocked() uint64 {
	e.locSeq++
	return e.locSeq
}

// persistLocation stores pollID ("" clears it) unless a later location
// change was already written or Reset abandoned this one.
func (e *Engine) persistLocation(ctx context.Context, seq uint64, pollID string) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	floor := e.locFloor
	e.mu.Unlock()
	if seq <= floor || seq < e.locWritten {
		return nil
	}

	var err error
	if pollID == "" {
		err = e.location.ClearPoll(ctx)
	} else {
		err = e.location.SetPoll(ctx, pollID)
	}
	if err != nil {
		return err
	}
	e.locWritten = seq
	return nil
}

func (e *Engine) leaveLocked() {
	e.gen++
	e.loading = false
	e.err = nil
	if e.active != nil {
		e.channel.Unsubscribe(e.active.poll.ID)
		e.active = nil
	}
}

// SubmitVote casts a vote for optionID on the active poll.
func (e *Engine) SubmitVote(ctx context.Context, optionID string) error {
	optionID = strings.TrimSpace(optionID)

	e.mu.Lock()
	s := e.active
	if s == nil {
		e.mu.Unlock()
		return common.ErrNoActivePoll
	}
	username, ok := e.identity.Current()
	if !ok {
		e.mu.Unlock()
		return common.ErrNotAuthenticated
	}
	if err := e.checkOptionLocked(s, optionID); err != nil {
		e.mu.Unlock()
		return err
	}
	pollID := s.poll.ID
	known := s.voted
	e.mu.Unlock()

	if !known {
		voted, err := e.ledger.HasVoted(ctx, username, pollID)
		if err != nil {
			return err
		}
		known = voted
	}

	e.mu.Lock()
	if e.active != s {
		e.mu.Unlock()
		return common.ErrNoActivePoll
	}
	s.voted = s.voted || known
	if err := e.checkVoteLocked(s); err != nil {
		e.mu.Unlock()
		return err
	}
	s.voting = true
	e.mu.Unlock()

	resp, err := e.api.SubmitVote(ctx, pollID, models.VoteRequest{OptionID: optionID, Username: username})

	// The ledger write must not depend on the caller still waiting.
	wctx := context.WithoutCancel(ctx)

	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			// The server already holds a vote for this user.
			if lerr := e.ledger.MarkVoted(wctx, username, pollID); lerr != nil {
				e.log.Error(ctx, "record vote locally", "poll_id", pollID, "error", lerr)
			}
		}
		e.mu.Lock()
		s.voting = false
		if cur := e.active; cur != nil && cur.poll.ID == pollID {
			if errors.Is(err, common.ErrConflict) {
				cur.voted = true
			}
			e.err = err
		}
		e.mu.Unlock()
		e.log.Warn(ctx, "vote failed", "poll_id", pollID, "error", err)
		return fmt.Errorf("submit vote: %w", err)
	}

	lerr := e.ledger.MarkVoted(wctx, username, pollID)
	tally := resp != nil && resp.Results != nil

	e.mu.Lock()
	s.voting = false
	current := e.active != nil && e.active.poll.ID == pollID
	if current {
		e.active.voted = true
		if tally {
			e.active.snapshot = models.NewSnapshot(resp.Results, e.now())
		}
		e.err = nil
	} else {
		e.log.Debug(ctx, "vote response for inactive poll, snapshot dropped", "poll_id", pollID)
	}
	e.mu.Unlock()

	if lerr != nil {
		e.log.Error(ctx, "record vote locally", "poll_id", pollID, "error", lerr)
		return fmt.Errorf("record vote: %w", lerr)
	}
	e.log.Info(ctx, "vote recorded", "poll_id", pollID, "option_id", optionID)

	if current && !tally {
		// No tally in the response: keep the loaded one and refetch.
		if err := e.RefreshResults(ctx); err != nil {
			e.log.Warn(ctx, "refresh after vote", "poll_id", pollID, "error", err)
		}
	}
	return nil
}

func (e *Engine) checkOptionLocked(s *session, optionID string) error {
	if optionID == "" {
		return common.NewValidationError("option", "please select an option")
	}
	if !s.poll.HasOption(optionID) {
		return common.NewValidationError("option", "option does not belong to this poll")
	}
	return nil
}

func (e *Engine) checkVoteLocked(s *session) error {
	if s.voting {
		return common.NewValidationError("vote", "a vote is already being submitted")
	}
	if s.voted {
		return common.NewValidationError("vote", "you have already voted on this poll")
	}
	if !s.poll.OpenAt(e.now()) {
		return common.NewValidationError("poll", "this poll is not accepting votes")
	}
	return nil
}

// HandleEvent applies a pushed event. Results for any poll other than the
// active one are discarded.
func (e *Engine) HandleEvent(ev realtime.Event) {
	ru, ok := ev.(realtime.ResultsUpdated)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.poll.ID != ru.PollID {
		return
	}
	e.active.snapshot = ru.Snapshot
}

// RefreshResults refetches the tally. On failure the last snapshot stays
// and the error is attached.
func (e *Engine) RefreshResults(ctx context.Context) error {
	e.mu.Lock()
	if e.active == nil {
		e.mu.Unlock()
		return common.ErrNoActivePoll
	}
	pollID := e.active.poll.ID
	e.mu.Unlock()

	results, err := e.api.GetResults(ctx, pollID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.poll.ID != pollID {
		return nil
	}
	if err != nil {
		e.err = err
		return fmt.Errorf("refresh results: %w", err)
	}
	e.active.snapshot = models.NewSnapshot(results, e.now())
	e.err = nil
	return nil
}

// Pending returns the poll id waiting for login, or "".
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}
