package launch

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// ErrQueueFull is returned when the event queue cannot take another event
var ErrQueueFull = errors.New("launch event queue full")

// EventKind identifies an inbound event
type EventKind int

const (
	// EventConnectivity carries a reachability change
	EventConnectivity EventKind = iota
	// EventRetry asks for a fresh resolution pass
	EventRetry
	// EventPushToken reports a refreshed push token
	EventPushToken
	// EventDeepLink reports a stored deep link
	EventDeepLink
)

func (k EventKind) String() string {
	switch k {
	case EventConnectivity:
		return "connectivity"
	case EventRetry:
		return "retry"
	case EventPushToken:
		return "push_token"
	case EventDeepLink:
		return "deep_link"
	default:
		return "unknown"
	}
}

// Event is pushed into the resolver by its collaborators
type Event struct {
	Kind   EventKind
	Online bool
	Value  string
}

// UpdateKind identifies an outbound update
type UpdateKind string

const (
	UpdatePhase          UpdateKind = "phase"
	UpdateDeepLinkStored UpdateKind = "deep_link_stored"
)

// Update is fanned out to subscribers
type Update struct {
	Kind       UpdateKind        `json:"kind"`
	Phase      types.LaunchPhase `json:"phase"`
	DeepLink   string            `json:"deep_link,omitempty"`
	Generation uint64            `json:"generation"`
	At         time.Time         `json:"at"`
}

// deliver replaces the oldest pending update rather than blocking
func deliver(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
