package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

var getLines = GetLines

const whenHint = "(empty = none; RFC3339, \"2006-01-02 15:04\" or +duration like +30m)"

func (a *App) Dashboard(ctx context.Context) error {
	if err := a.rt.RefreshDashboard(ctx); err != nil {
		return err
	}
	d := a.rt.Dashboard()
	st := d.Stats()
	fmt.Fprintf(a.out, "Polls: %s  Votes: %s  Active: %s\n",
		humanize.Comma(int64(st.TotalPolls)), humanize.Comma(st.TotalVotes), humanize.Comma(int64(st.ActivePolls)))

	polls := d.Polls()
	if len(polls) == 0 {
		fmt.Fprintln(a.out, "You have not created any polls yet. Use 'create'.")
		return nil
	}
	for _, p := range polls {
		state := "closed"
		if p.OpenAt(a.now()) {
			state = "open"
		}
		fmt.Fprintf(a.out, "  %-12s %-40s %6s votes  %-6s created %s\n",
			p.ID, p.Question, humanize.Comma(p.TotalVotes()), state, humanize.Time(p.CreatedAt))
	}
	return nil
}

func (a *App) Create(ctx context.Context) error {
	question, err := getSimpleText(a.reader, "Enter question", a.out)
	if err != nil {
		return err
	}
	options, err := getLines(a.reader, "Enter options, one per line", a.out)
	if err != nil {
		return err
	}
	schedule, err := a.readSchedule()
	if err != nil {
		return err
	}

	p, err := a.rt.CreatePoll(ctx, models.PollDraft{
		Question:    question,
		Options:     options,
		StartAt:     schedule.StartAt,
		ActiveUntil: schedule.ActiveUntil,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Poll created! Share code: %s\n", p.ID)
	a.render()
	return nil
}

func (a *App) Join(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" {
		var err error
		if ref, err = getSimpleText(a.reader, "Enter poll id or link", a.out); err != nil {
			return err
		}
	}
	if err := a.rt.Join(ctx, ref); err != nil {
		return err
	}
	a.render()
	return nil
}

// Vote accepts a 1-based option number or an option id.
func (a *App) Vote(ctx context.Context, choice string) error {
	v := a.rt.Engine().View()
	if v.Poll == nil {
		return common.ErrNoActivePoll
	}
	if strings.TrimSpace(choice) == "" {
		a.render()
		var err error
		if choice, err = getSimpleText(a.reader, "Choose an option number", a.out); err != nil {
			return err
		}
	}

	optionID, err := resolveChoice(*v.Poll, choice)
	if err != nil {
		return err
	}
	if err := a.rt.Engine().SubmitVote(ctx, optionID); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Vote recorded!")
	a.render()
	return nil
}

func (a *App) Results(_ context.Context) error {
	if a.rt.Engine().View().Poll == nil {
		return common.ErrNoActivePoll
	}
	a.render()
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.rt.Engine().RefreshResults(ctx); err != nil {
		return err
	}
	a.render()
	return nil
}

func (a *App) Share(_ context.Context) error {
	v := a.rt.Engine().View()
	if v.Poll == nil {
		return common.ErrNoActivePoll
	}
	fmt.Fprintf(a.out, "Link: %s\nCode: %s\n", v.ShareLink, v.Poll.ID)
	return nil
}

func (a *App) Leave(ctx context.Context) error {
	return a.rt.Engine().Deactivate(ctx, true)
}

func (a *App) Delete(ctx context.Context, pollID string) error {
	pollID, err := a.targetPoll(pollID)
	if err != nil {
		return err
	}
	answer, err := getSimpleText(a.reader, fmt.Sprintf("Delete poll %s? (y/N)", pollID), a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := a.rt.DeletePoll(ctx, pollID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Poll %s deleted\n", pollID)
	return nil
}

func (a *App) Toggle(ctx context.Context, pollID string) error {
	pollID, err := a.targetPoll(pollID)
	if err != nil {
		return err
	}
	active, err := a.rt.TogglePoll(ctx, pollID)
	if err != nil {
		return err
	}
	state := "inactive"
	if active {
		state = "active"
	}
	fmt.Fprintf(a.out, "Poll %s is now %s\n", pollID, state)
	return nil
}

func (a *App) Schedule(ctx context.Context, pollID string) error {
	pollID, err := a.targetPoll(pollID)
	if err != nil {
		return err
	}
	schedule, err := a.readSchedule()
	if err != nil {
		return err
	}
	if _, err := a.rt.ReschedulePoll(ctx, pollID, schedule); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Schedule of poll %s updated\n", pollID)
	return nil
}

// targetPoll defaults an empty id to the active poll.
func (a *App) targetPoll(pollID string) (string, error) {
	if pollID = strings.TrimSpace(pollID); pollID != "" {
		return pollID, nil
	}
	if v := a.rt.Engine().View(); v.Poll != nil {
		return v.Poll.ID, nil
	}
	return "", common.NewValidationError("poll", "please give a poll id or join a poll first")
}

func (a *App) readSchedule() (models.Schedule, error) {
	var s models.Schedule
	raw, err := getSimpleText(a.reader, "Start time "+whenHint, a.out)
	if err != nil {
		return s, err
	}
	if s.StartAt, err = parseWhen(raw, a.now()); err != nil {
		return s, common.NewValidationError("startAt", err.Error())
	}
	raw, err = getSimpleText(a.reader, "End time "+whenHint, a.out)
	if err != nil {
		return s, err
	}
	if s.ActiveUntil, err = parseWhen(raw, a.now()); err != nil {
		return s, common.NewValidationError("activeUntil", err.Error())
	}
	return s, nil
}

// parseWhen reads an absolute time or a "+duration" offset from now. Empty
// input means no time.
func parseWhen(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(raw, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", rest)
		}
		t := now.Add(d)
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, time.Local); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid time %q", raw)
}

func resolveChoice(p models.Poll, choice string) (string, error) {
	choice = strings.TrimSpace(choice)
	n, err := strconv.Atoi(choice)
	if err != nil {
		return choice, nil
	}
	if n < 1 || n > len(p.Options) {
		return "", common.NewValidationError("option", fmt.Sprintf("choose a number between 1 and %d", len(p.Options)))
	}
	return p.Options[n-1].ID, nil
}
