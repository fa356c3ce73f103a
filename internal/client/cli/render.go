package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/livepoll/internal/client/pollsession"
)

const barWidth = 20

func (a *App) render() {
	renderView(a.out, a.rt.Engine().View(), a.now())
}

func renderView(w io.Writer, v pollsession.View, now time.Time) {
	p := v.Poll
	if p == nil {
		fmt.Fprintln(w, "No poll is open.")
		return
	}

	fmt.Fprintf(w, "\n%s\n", p.Question)
	fmt.Fprintf(w, "by %s · %s\n", p.CreatedBy, windowText(v, now))

	if !v.ResultsVisible {
		for i, o := range p.Options {
			fmt.Fprintf(w, "  %d. %s\n", i+1, o.Text)
		}
		fmt.Fprintln(w, "Results are shown after you vote.")
		return
	}

	for i, o := range v.Snapshot.Results {
		pct := v.Snapshot.Percentage(o.Votes)
		fmt.Fprintf(w, "  %d. %-24s %s %3d%% (%s)\n",
			i+1, o.Text, bar(pct), pct, plural(o.Votes, "vote"))
	}
	fmt.Fprintf(w, "Total: %s · updated %s\n",
		plural(v.Snapshot.Total(), "vote"), humanize.RelTime(v.Snapshot.UpdatedAt, now, "ago", "from now"))
	if v.HasVoted {
		fmt.Fprintln(w, "You voted on this poll.")
	}
}

func windowText(v pollsession.View, now time.Time) string {
	p := v.Poll
	switch {
	case !p.IsActive:
		return "closed"
	case p.StartAt != nil && now.Before(*p.StartAt):
		return "opens " + humanize.RelTime(*p.StartAt, now, "ago", "from now")
	case p.ActiveUntil != nil && !now.Before(*p.ActiveUntil):
		return "ended " + humanize.RelTime(*p.ActiveUntil, now, "ago", "from now")
	case p.ActiveUntil != nil:
		return "open, ends " + humanize.RelTime(*p.ActiveUntil, now, "ago", "from now")
	default:
		return "open"
	}
}

func bar(pct int) string {
	filled := pct * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}

func plural(n int64, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(n) + " " + word + "s"
}
