package pollsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/realtime"
)

type PollLister interface {
	ListPolls(ctx context.Context) ([]models.Poll, error)
}

// Stats summarises the user's own polls.
type Stats struct {
	TotalPolls  int
	TotalVotes  int64
	ActivePolls int
}

// Dashboard is the list of polls created by the logged-in user, kept
// current by pushed events.
type Dashboard struct {
	api PollLister

	mu       sync.Mutex
	username string
	polls    []models.Poll
}

func NewDashboard(api PollLister) *Dashboard {
	return &Dashboard{api: api}
}

// Load replaces the list with the polls created by username. On failure
// the previous list is kept.
func (d *Dashboard) Load(ctx context.Context, username string) error {
	all, err := d.api.ListPolls(ctx)
	if err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}

	own := make([]models.Poll, 0)
	for _, p := range all {
		if p.CreatedBy == username {
			own = append(own, p)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.username = username
	d.polls = own
	return nil
}

func (d *Dashboard) Polls() []models.Poll {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Poll, len(d.polls))
	copy(out, d.polls)
	return out
}

func (d *Dashboard) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	var st Stats
	st.TotalPolls = len(d.polls)
	for _, p := range d.polls {
		st.TotalVotes += p.TotalVotes()
		if p.IsActive {
			st.ActivePolls++
		}
	}
	return st
}

func (d *Dashboard) HandleEvent(ev realtime.Event) {
	switch ev := ev.(type) {
	case realtime.PollCreated:
		d.HandlePollCreated(ev.Poll)
	case realtime.ResultsUpdated:
		d.mu.Lock()
		defer d.mu.Unlock()
		for i := range d.polls {
			if d.polls[i].ID == ev.PollID {
				d.polls[i].Results = append([]models.Option(nil), ev.Snapshot.Results...)
			}
		}
	}
}

// HandlePollCreated appends p when the current user created it.
func (d *Dashboard) HandlePollCreated(p models.Poll) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.username == "" || p.CreatedBy != d.username {
		return
	}
	for _, existing := range d.polls {
		if existing.ID == p.ID {
			return
		}
	}
	d.polls = append(d.polls, p)
}

func (d *Dashboard) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.username = ""
	d.polls = nil
}
