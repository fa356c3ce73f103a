package pollsession

import (
	"github.com/dmitrijs2005/livepoll/internal/client/models"
)

// View is an immutable copy of the engine state for presentation.
type View struct {
	State          State
	Poll           *models.Poll
	Snapshot       models.ResultSnapshot
	ResultsVisible bool
	HasVoted       bool
	IsCreator      bool
	CanVote        bool
	Voting         bool
	Err            error
	ShareLink      string
	PendingPollID  string
}

func (e *Engine) View() View {
	username, authed := e.identity.Current()

	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{Err: e.err, PendingPollID: e.pending}
	s := e.active
	if s == nil {
		v.State = StateIdle
		if e.loading {
			v.State = StateLoading
		}
		return v
	}

	p := s.poll
	p.Options = append([]models.Option(nil), s.poll.Options...)
	p.Results = append([]models.Option(nil), s.poll.Results...)
	v.Poll = &p
	v.Snapshot = models.NewSnapshot(s.snapshot.Results, s.snapshot.UpdatedAt)
	v.HasVoted = s.voted
	v.IsCreator = authed && p.CreatedBy == username
	v.ResultsVisible = s.visible(username)
	v.Voting = s.voting
	v.CanVote = authed && !s.voted && !s.voting && p.OpenAt(e.now())
	v.ShareLink = e.location.ShareLink(p.ID)

	switch {
	case e.loading:
		v.State = StateLoading
	case s.voted:
		v.State = StateVoted
	case v.ResultsVisible:
		v.State = StateResultsVisible
	default:
		v.State = StateActive
	}
	return v
}
