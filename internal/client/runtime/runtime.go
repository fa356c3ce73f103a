// Package runtime owns the process-scoped client state: the local database,
// the API gateway, the realtime channel, the session and the poll engine.
// It is opened once at start and torn down on logout or exit.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/livepoll/internal/client/api"
	"github.com/dmitrijs2005/livepoll/internal/client/config"
	"github.com/dmitrijs2005/livepoll/internal/client/db"
	"github.com/dmitrijs2005/livepoll/internal/client/deeplink"
	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/pollsession"
	"github.com/dmitrijs2005/livepoll/internal/client/realtime"
	"github.com/dmitrijs2005/livepoll/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/livepoll/internal/client/services"
	"github.com/dmitrijs2005/livepoll/internal/common"
	"github.com/dmitrijs2005/livepoll/internal/filex"
	"github.com/dmitrijs2005/livepoll/internal/logging"
)

type Runtime struct {
	cfg *config.Config
	log logging.Logger
	db  *sql.DB

	api       *api.HTTPClient
	channel   *realtime.Client
	session   services.SessionService
	ledger    services.VoteLedger
	polls     services.PollService
	location  *deeplink.Location
	engine    *pollsession.Engine
	dashboard *pollsession.Dashboard

	// mu serialises identity transitions.
	mu sync.Mutex
}

// Open wires the client and restores the persisted identity and location.
// A realtime connection failure is not fatal: the channel keeps retrying in
// the background.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger) (*Runtime, error) {
	if log == nil {
		log = logging.Nop()
	}

	if _, err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return nil, err
	}
	conn, err := db.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	gw, err := api.NewHTTPClient(cfg.APIBaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithRetry(cfg.MaxAttempts, cfg.RetryInitialInterval, cfg.RetryMultiplier),
		api.WithLogger(log.With("component", "api")),
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	location, err := deeplink.New(cfg.ShareBaseURL, metadata.NewSQLiteRepository(conn))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	r := &Runtime{
		cfg:      cfg,
		log:      log,
		db:       conn,
		api:      gw,
		location: location,
		channel: realtime.New(cfg.RealtimeURL,
			realtime.WithReconnect(cfg.ReconnectAttempts, cfg.ReconnectDelay),
			realtime.WithLogger(log.With("component", "realtime")),
		),
		session: services.NewSessionService(gw, conn),
		ledger:  services.NewVoteLedger(conn),
	}
	r.polls = services.NewPollService(gw, r.session)
	r.dashboard = pollsession.NewDashboard(gw)
	r.engine = pollsession.NewEngine(pollsession.Deps{
		API:      gw,
		Channel:  r.channel,
		Ledger:   r.ledger,
		Identity: r.session,
		Location: location,
		Logger:   log.With("component", "engine"),
	})
	r.channel.OnEvent(func(ev realtime.Event) {
		r.engine.HandleEvent(ev)
		r.dashboard.HandleEvent(ev)
	})

	username, ok, err := r.session.Restore(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := location.Load(ctx); err != nil {
		r.Close()
		return nil, err
	}
	if ok {
		log.Info(ctx, "session restored", "username", username)
	}

	if err := r.channel.Connect(ctx); err != nil {
		log.Warn(ctx, "realtime connect failed, retrying in background", "error", err)
	}
	return r, nil
}

// Resume joins the poll carried by the persisted location, if any. Without
// a logged-in user the poll stays pending until Login.
func (r *Runtime) Resume(ctx context.Context) error {
	if username, ok := r.session.Current(); ok {
		if err := r.dashboard.Load(ctx, username); err != nil {
			r.log.Warn(ctx, "dashboard load failed", "error", err)
		}
	}
	pollID := r.location.PollID()
	if pollID == "" {
		return nil
	}
	return r.engine.Join(ctx, pollID)
}

// Register creates an account. It does not log in.
func (r *Runtime) Register(ctx context.Context, username, email, password, confirm string) error {
	return r.session.Register(ctx, username, email, password, confirm)
}

// Login authenticates and then replays a join that was waiting for login.
// A failed replay does not undo the login. Logging in as someone else while
// a user is logged in logs that user out first.
func (r *Runtime) Login(ctx context.Context, username, password string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.session.Current(); ok && cur != strings.TrimSpace(username) {
		if err := r.logoutLocked(ctx); err != nil {
			return "", fmt.Errorf("switch user: %w", err)
		}
	}

	name, err := r.session.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	r.log.Info(ctx, "logged in", "username", name)

	if err := r.dashboard.Load(ctx, name); err != nil {
		r.log.Warn(ctx, "dashboard load failed", "error", err)
	}
	if err := r.engine.ResumePending(ctx); err != nil {
		return name, fmt.Errorf("resume pending poll: %w", err)
	}
	return name, nil
}

// Logout clears identity, ledger and location, resets all poll state and
// reconnects the channel after the configured grace period. Nothing is
// reset when clearing storage fails.
func (r *Runtime) Logout(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logoutLocked(ctx)
}

func (r *Runtime) logoutLocked(ctx context.Context) error {
	if err := r.session.Logout(ctx); err != nil {
		return err
	}
	r.engine.Reset()
	r.location.Reset()
	r.dashboard.Reset()
	r.channel.DisconnectAndRearm(r.cfg.ReconnectGrace)

	r.log.Info(ctx, "logged out")
	return nil
}

// Join accepts a poll id or a share link.
func (r *Runtime) Join(ctx context.Context, ref string) error {
	pollID, err := deeplink.ParsePollRef(ref)
	if err != nil {
		return err
	}
	return r.engine.Join(ctx, pollID)
}

// CreatePoll creates a poll and makes it the active one with results
// visible.
func (r *Runtime) CreatePoll(ctx context.Context, draft models.PollDraft) (*models.Poll, error) {
	p, err := r.polls.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	r.dashboard.HandlePollCreated(*p)
	if err := r.engine.ActivateCreated(ctx, *p); err != nil {
		return p, err
	}
	return p, nil
}

// DeletePoll deletes pollID and leaves it if it is the active poll.
func (r *Runtime) DeletePoll(ctx context.Context, pollID string) error {
	if err := r.polls.Delete(ctx, pollID); err != nil {
		return err
	}
	if r.isActive(pollID) {
		if err := r.engine.Deactivate(ctx, true); err != nil {
			return err
		}
	}
	r.reloadDashboard(ctx)
	return nil
}

// TogglePoll flips the active flag of pollID and returns the new value.
func (r *Runtime) TogglePoll(ctx context.Context, pollID string) (bool, error) {
	active, err := r.polls.Toggle(ctx, pollID)
	if err != nil {
		return false, err
	}
	r.reloadActive(ctx, pollID)
	r.reloadDashboard(ctx)
	return active, nil
}

// ReschedulePoll updates the voting window of pollID.
func (r *Runtime) ReschedulePoll(ctx context.Context, pollID string, s models.Schedule) (*models.Poll, error) {
	p, err := r.polls.Reschedule(ctx, pollID, s)
	if err != nil {
		return nil, err
	}
	r.reloadActive(ctx, pollID)
	r.reloadDashboard(ctx)
	return p, nil
}

// RefreshDashboard reloads the current user's polls.
func (r *Runtime) RefreshDashboard(ctx context.Context) error {
	username, ok := r.session.Current()
	if !ok {
		return common.ErrNotAuthenticated
	}
	return r.dashboard.Load(ctx, username)
}

func (r *Runtime) isActive(pollID string) bool {
	v := r.engine.View()
	return v.Poll != nil && v.Poll.ID == pollID
}

func (r *Runtime) reloadActive(ctx context.Context, pollID string) {
	if !r.isActive(pollID) {
		return
	}
	if err := r.engine.Join(ctx, pollID); err != nil && !errors.Is(err, common.ErrNotAuthenticated) {
		r.log.Warn(ctx, "reload active poll failed", "poll_id", pollID, "error", err)
	}
}

func (r *Runtime) reloadDashboard(ctx context.Context) {
	if err := r.RefreshDashboard(ctx); err != nil {
		r.log.Warn(ctx, "dashboard load failed", "error", err)
	}
}

// Close stops the realtime channel and closes the database.
func (r *Runtime) Close() {
	r.channel.Disconnect()
	if err := r.db.Close(); err != nil {
		r.log.Error(context.Background(), "close database", "error", err)
	}
}

func (r *Runtime) Engine() *pollsession.Engine       { return r.engine }
func (r *Runtime) Dashboard() *pollsession.Dashboard { return r.dashboard }
func (r *Runtime) Session() services.SessionService  { return r.session }
func (r *Runtime) Ledger() services.VoteLedger       { return r.ledger }
func (r *Runtime) Location() *deeplink.Location      { return r.location }
func (r *Runtime) Channel() *realtime.Client         { return r.channel }
func (r *Runtime) Config() *config.Config            { return r.cfg }
