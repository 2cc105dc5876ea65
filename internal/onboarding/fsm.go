package onboarding

import (
	"fmt"

	"aether-vault/internal/domain"
)

// State is a step of the onboarding dialog.
type State int

const (
	Welcome State = iota
	ProfileSelection
	GuardianToggle
	InitialDeposit
	Done
)

var stateNames = map[State]string{
	Welcome:          "welcome",
	ProfileSelection: "profile_selection",
	GuardianToggle:   "guardian_toggle",
	InitialDeposit:   "initial_deposit",
	Done:             "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step returns the 1-based position shown in the dialog header.
func (s State) Step() int { return int(s) + 1 }

// Event moves the dialog between steps.
type Event int

const (
	Advance Event = iota
	Retreat
)

// Transition is the pure step function. Done is only reachable through
// Workflow.Finish, so Advance at InitialDeposit stays put, as does Retreat at
// Welcome. Done accepts no events.
func Transition(s State, e Event) (State, error) {
	if s == Done {
		return s, fmt.Errorf("onboarding already finished")
	}
	if s < Welcome || s > Done {
		return s, fmt.Errorf("unknown onboarding state %d", int(s))
	}
	switch e {
	case Advance:
		if s == InitialDeposit {
			return s, nil
		}
		return s + 1, nil
	case Retreat:
		if s == Welcome {
			return s, nil
		}
		return s - 1, nil
	default:
		return s, fmt.Errorf("unknown onboarding event %d", int(e))
	}
}

// Session is the transient dialog state. Nothing in it is persisted until
// Workflow.Finish runs.
type Session struct {
	State    State
	Profile  domain.StrategyProfile
	Guardian bool
}

// NewSession opens the dialog at Welcome with default selections.
func NewSession() Session {
	return Session{State: Welcome, Profile: domain.DefaultProfile, Guardian: true}
}

// Advance moves one step forward.
func (s *Session) Advance() {
	s.State, _ = Transition(s.State, Advance)
}

// Retreat moves one step back.
func (s *Session) Retreat() {
	s.State, _ = Transition(s.State, Retreat)
}

// SelectProfile records the chosen strategy profile.
func (s *Session) SelectProfile(p domain.StrategyProfile) error {
	if !p.Valid() {
		return domain.NewValidationError("strategyProfile", fmt.Sprintf("unknown strategy profile %q", p))
	}
	s.Profile = p
	return nil
}

// SetGuardian records the guardian preference.
func (s *Session) SetGuardian(enabled bool) {
	s.Guardian = enabled
}

// Reset re-opens the dialog.
func (s *Session) Reset() {
	*s = NewSession()
}

// Finished reports whether the dialog has closed.
func (s Session) Finished() bool { return s.State == Done }
