package core

import (
	"errors"
	"fmt"
	"log"
	"time"

	"swasthai.dev/health-sentinel/internal/store"
)

// Event names the transition the caller wants. The manager only validates
// that the transition is legal for the session's current state and persists
// it; deciding which event to raise belongs to the triage flow.
type Event string

const (
	EventDetailsRequested  Event = "details_requested"
	EventAssessmentGiven   Event = "assessment_given"
	EventFollowUpScheduled Event = "follow_up_scheduled"
	EventCompleted         Event = "completed"
)

// ErrIllegalTransition is returned by Advance when the event is not valid for
// the session's current state.
var ErrIllegalTransition = errors.New("illegal session transition")

// transitions maps (current state, event) to the next state.
var transitions = map[string]map[Event]string{
	store.StateInitial: {
		EventDetailsRequested: store.StateAwaitingDetails,
		EventAssessmentGiven:  store.StateAssessmentGiven,
		EventCompleted:        store.StateCompleted,
	},
	store.StateAwaitingDetails: {
		EventAssessmentGiven: store.StateAssessmentGiven,
		EventCompleted:       store.StateCompleted,
	},
	store.StateAssessmentGiven: {
		EventFollowUpScheduled: store.StateFollowUp,
		EventCompleted:         store.StateCompleted,
	},
	store.StateFollowUp: {
		EventCompleted: store.StateCompleted,
	},
	// StateCompleted is terminal.
}

// SessionStore is the slice of the store the session manager needs.
type SessionStore interface {
	EnsureUser(telegramID string) (*store.User, error)
	GetActiveSession(telegramID string) (*store.Session, error)
	CreateSession(telegramID string) (*store.Session, error)
	UpdateSession(session *store.Session) error
	TouchSession(sessionID string, at time.Time) error
	CompleteSession(sessionID string, at time.Time) (bool, error)
}

// SessionManager owns the per-user conversation state machine. All persisted
// state lives in the store; the manager holds nothing across calls.
type SessionManager struct {
	dbStore SessionStore
}

func NewSessionManager(db SessionStore) *SessionManager {
	return &SessionManager{dbStore: db}
}

// GetOrCreateActiveSession returns the user's single non-completed session,
// creating the user row and a fresh INITIAL session if needed. Two inbound
// messages racing for the same new user resolve through the store's active-
// session uniqueness constraint: the losing insert re-reads the winner.
func (m *SessionManager) GetOrCreateActiveSession(telegramID string) (*store.Session, error) {
	// User creation must never fail session creation.
	if _, err := m.dbStore.EnsureUser(telegramID); err != nil {
		return nil, fmt.Errorf("failed to ensure user %s: %w", telegramID, err)
	}

	session, err := m.dbStore.GetActiveSession(telegramID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session, err = m.dbStore.CreateSession(telegramID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, store.ErrActiveSessionExists) {
		return nil, err
	}

	// Lost the creation race; the winner's session is the active one.
	session, err = m.dbStore.GetActiveSession(telegramID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("active session for %s vanished after creation race", telegramID)
	}
	return session, nil
}

// Advance applies the event to the session, persisting the new state together
// with the session's context and a bumped last_activity.
func (m *SessionManager) Advance(session *store.Session, event Event) (*store.Session, error) {
	next, ok := transitions[session.SessionState][event]
	if !ok {
		return nil, fmt.Errorf("%w: %s on state %s", ErrIllegalTransition, event, session.SessionState)
	}

	if next == store.StateCompleted {
		if err := m.Complete(session); err != nil {
			return nil, err
		}
		return session, nil
	}

	session.SessionState = next
	session.LastActivity = time.Now().UTC()
	if err := m.dbStore.UpdateSession(session); err != nil {
		return nil, fmt.Errorf("failed to persist transition to %s: %w", next, err)
	}
	return session, nil
}

// Touch records message activity without changing state. Any state may
// receive a new inbound message.
func (m *SessionManager) Touch(session *store.Session) error {
	session.LastActivity = time.Now().UTC()
	return m.dbStore.TouchSession(session.ID, session.LastActivity)
}

// Complete marks the session COMPLETED and stamps completed_at. Calling it on
// an already completed session is a no-op, not an error.
func (m *SessionManager) Complete(session *store.Session) error {
	if session.SessionState == store.StateCompleted {
		return nil
	}
	now := time.Now().UTC()
	done, err := m.dbStore.CompleteSession(session.ID, now)
	if err != nil {
		return fmt.Errorf("failed to complete session %s: %w", session.ID, err)
	}
	if !done {
		// Someone else completed it first; treat the same as the no-op path.
		log.Printf("session %s was already completed", session.ID)
	}
	session.SessionState = store.StateCompleted
	session.CompletedAt = &now
	session.LastActivity = now
	return nil
}
