package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
)

// Wire event names.
const (
	eventJoinPoll       = "joinPoll"
	eventLeavePoll      = "leavePoll"
	eventResultsUpdated = "resultsUpdated"
	eventPollCreated    = "pollCreated"
)

var (
	ErrUnknownEvent = errors.New("unknown realtime event")
	ErrBadPayload   = errors.New("malformed realtime payload")
)

// Event is a decoded server push. The set of implementations is closed:
// ResultsUpdated and PollCreated.
type Event interface {
	event()
}

// ResultsUpdated carries the full tally of one poll.
type ResultsUpdated struct {
	PollID   string
	Snapshot models.ResultSnapshot
}

// PollCreated announces a new poll.
type PollCreated struct {
	Poll models.Poll
}

func (ResultsUpdated) event() {}
func (PollCreated) event()    {}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type resultsPayload struct {
	PollID  string          `json:"pollId"`
	Results []models.Option `json:"results"`
}

func encodeRoomFrame(event, pollID string) ([]byte, error) {
	data, err := json.Marshal(pollID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Data: data})
}

// decodeEvent parses and validates one inbound frame. receivedAt stamps
// the snapshot of a results update.
func decodeEvent(raw []byte, receivedAt time.Time) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch f.Event {
	case eventResultsUpdated:
		var p resultsPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, f.Event, err)
		}
		if p.PollID == "" {
			return nil, fmt.Errorf("%w: %s: missing pollId", ErrBadPayload, f.Event)
		}
		if p.Results == nil {
			return nil, fmt.Errorf("%w: %s: missing results", ErrBadPayload, f.Event)
		}
		for _, o := range p.Results {
			if o.ID == "" || o.Votes < 0 {
				return nil, fmt.Errorf("%w: %s: invalid option %q", ErrBadPayload, f.Event, o.ID)
			}
		}
		return ResultsUpdated{PollID: p.PollID, Snapshot: models.NewSnapshot(p.Results, receivedAt)}, nil

	case eventPollCreated:
		var p models.Poll
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, f.Event, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing id", ErrBadPayload, f.Event)
		}
		return PollCreated{Poll: p}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}
