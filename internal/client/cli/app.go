package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/client/api"
	"github.com/dmitrijs2005/livepoll/internal/client/deeplink"
	"github.com/dmitrijs2005/livepoll/internal/client/runtime"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

type App struct {
	rt     *runtime.Runtime
	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time
}

func NewApp(rt *runtime.Runtime, in io.Reader, out io.Writer) *App {
	return &App{rt: rt, reader: bufio.NewReader(in), out: out, now: time.Now}
}

// Run resumes the persisted location (or link, when non-empty) and then
// serves the REPL until the user exits.
func (a *App) Run(ctx context.Context, link string) {
	fmt.Fprintln(a.out, "Welcome to livepoll (type 'help' for commands)")

	if username, ok := a.rt.Session().Current(); ok {
		fmt.Fprintf(a.out, "Logged in as %s\n", username)
	}

	var err error
	if link != "" {
		err = a.Join(ctx, link)
	} else if err = a.rt.Resume(ctx); err == nil && a.rt.Engine().View().Poll != nil {
		a.render()
	}
	if err != nil {
		fmt.Fprintln(a.out, "Error:", describe(err))
	}

	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) isLoggedIn() bool {
	_, ok := a.rt.Session().Current()
	return ok
}

func (a *App) status() string {
	s := ""
	if username, ok := a.rt.Session().Current(); ok {
		s = username + " "
	}
	if v := a.rt.Engine().View(); v.Poll != nil {
		s += "[" + v.Poll.ID + "] "
	}
	return fmt.Sprintf("(%s%s)", s, a.rt.Channel().State())
}

// describe turns an error into a message fit for the user.
func describe(err error) string {
	var ve *common.ValidationError
	var se *api.StatusError
	var te *api.TransientError
	switch {
	case errors.As(err, &ve):
		return ve.Reason
	case errors.Is(err, common.ErrNotAuthenticated):
		return "please log in first; the poll will open after login"
	case errors.Is(err, common.ErrNoActivePoll):
		return "no poll is open, use 'join <id|link>' first"
	case errors.Is(err, deeplink.ErrNoPollInLink):
		return "that link does not point to a poll"
	case errors.As(err, &se):
		return se.Message
	case errors.As(err, &te):
		return "server unavailable, please try again later"
	default:
		return err.Error()
	}
}
