package auth

import (
	"fmt"

	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
)

// Phase of the two-step login.
type Phase string

const (
	PhaseIdentifierEntry Phase = "IDENTIFIER_ENTRY"
	PhasePINEntry        Phase = "PIN_ENTRY"
	PhaseAuthenticated   Phase = "AUTHENTICATED"
	// PhaseFailed means no API token could be provisioned; Restarted recovers.
	PhaseFailed Phase = "FAILED"
)

type EventType string

const (
	EventIdentifierAccepted EventType = "IDENTIFIER_ACCEPTED"
	EventIdentifierNotFound EventType = "IDENTIFIER_NOT_FOUND"
	EventInputRejected      EventType = "INPUT_REJECTED"
	EventLoginSucceeded     EventType = "LOGIN_SUCCEEDED"
	EventLoginRejected      EventType = "LOGIN_REJECTED"
	EventRequestFailed      EventType = "REQUEST_FAILED"
	EventProvisioningFailed EventType = "PROVISIONING_FAILED"
	EventRestarted          EventType = "RESTARTED"
	EventLoggedOut          EventType = "LOGGED_OUT"
)

// Event is the outcome of an authenticator operation.
type Event struct {
	Type    EventType
	Login   string
	Message string
	User    *utilityapi.User
}

// State is what the login screens render from.
type State struct {
	Phase   Phase
	Login   string
	Message string
	User    *utilityapi.User
}

var transitions = map[Phase]map[EventType]Phase{
	PhaseIdentifierEntry: {
		EventIdentifierAccepted: PhasePINEntry,
		EventIdentifierNotFound: PhaseIdentifierEntry,
		EventInputRejected:      PhaseIdentifierEntry,
		EventRequestFailed:      PhaseIdentifierEntry,
		EventProvisioningFailed: PhaseFailed,
		EventRestarted:          PhaseIdentifierEntry,
		// social login completes from the identifier screen
		EventLoginSucceeded: PhaseAuthenticated,
	},
	PhasePINEntry: {
		EventLoginSucceeded:     PhaseAuthenticated,
		EventLoginRejected:      PhasePINEntry,
		EventInputRejected:      PhasePINEntry,
		EventRequestFailed:      PhasePINEntry,
		EventProvisioningFailed: PhaseFailed,
		EventRestarted:          PhaseIdentifierEntry,
	},
	PhaseAuthenticated: {
		EventLoggedOut: PhaseIdentifierEntry,
	},
	PhaseFailed: {
		EventRestarted: PhaseIdentifierEntry,
	},
}

// Reduce applies e to s. An event not allowed in the current phase returns
// ErrInvalidTransition and s unchanged.
func Reduce(s State, e Event) (State, error) {
	next, ok := transitions[s.Phase][e.Type]
	if !ok {
		return s, fmt.Errorf("[auth Reduce] %w: %s in %s", portalerrors.ErrInvalidTransition, e.Type, s.Phase)
	}

	out := State{Phase: next, Login: s.Login, Message: e.Message}
	switch e.Type {
	case EventIdentifierAccepted:
		out.Login = e.Login
	case EventLoginSucceeded:
		out.User = e.User
		if e.Login != "" {
			out.Login = e.Login
		}
	case EventRestarted, EventLoggedOut:
		out.Login = ""
	}
	return out, nil
}

// Redirect is the page a state should be shown on.
func (s State) Redirect() string {
	switch s.Phase {
	case PhasePINEntry:
		return "/passcode"
	case PhaseAuthenticated:
		return "/dashboard"
	default:
		return "/login"
	}
}
