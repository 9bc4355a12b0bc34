package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"swasthai.dev/health-sentinel/internal/store"
)

const (
	welcomeMessage = "Welcome to Health Sentinel.\n\n" +
		"Describe your symptoms naturally, for example: \"I have fever and cough for 2 days\".\n\n" +
		"I will assess them, give you a risk level and recommendations, and check in on you later if needed.\n\n" +
		"Commands:\n" +
		"/status - your recent health reports\n" +
		"/language <code> - set preferred language (en, hi, mr)\n" +
		"/help - this message\n\n" +
		"If you have severe symptoms, call your local emergency number immediately."

	intakeQuestions = "I understand. To give you an accurate assessment, please tell me:\n\n" +
		"1. What is your location (city or area)?\n" +
		"2. Any other symptoms besides what you mentioned?\n" +
		"3. Any pre-existing conditions or current medications?"

	evaluateFallback = "I'm sorry, I had trouble assessing that just now. Please try describing your symptoms again in a moment."
)

// Follow-up lead times by assessed risk.
const (
	criticalFollowupDelay = 24 * time.Hour
	highFollowupDelay     = 48 * time.Hour
)

var supportedLanguages = map[string]bool{"en": true, "hi": true, "mr": true}

// TriageStore is the slice of the store the intake path needs beyond what
// SessionManager already covers.
type TriageStore interface {
	GetUserByTelegramID(telegramID string) (*store.User, error)
	UpdateUserProfile(telegramID string, username, firstName, lastName *string) error
	SetUserLanguage(telegramID, language string) error
	GetActiveSession(telegramID string) (*store.Session, error)
	UpdateSession(session *store.Session) error
	InsertHealthRecord(record *store.HealthRecord) error
	GetHealthRecordsByUser(telegramID string, limit int) ([]store.HealthRecord, error)
}

// Profile carries the optional identity fields the messaging channel exposes.
type Profile struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// TriageService is the synchronous inbound-message path: it owns the
// conversation flow and delegates the actual health reasoning to the
// reasoning engine.
type TriageService struct {
	sessions  *SessionManager
	dbStore   TriageStore
	reasoning ReasoningEngine
	notifier  Notifier
}

func NewTriageService(sessions *SessionManager, db TriageStore, reasoning ReasoningEngine, notifier Notifier) *TriageService {
	return &TriageService{
		sessions:  sessions,
		dbStore:   db,
		reasoning: reasoning,
		notifier:  notifier,
	}
}

// HandleMessage processes one inbound user message end to end. Failures are
// logged and answered with a composed fallback; they never bubble a raw error
// to the user.
func (t *TriageService) HandleMessage(ctx context.Context, telegramID string, profile Profile, text string) error {
	session, err := t.sessions.GetOrCreateActiveSession(telegramID)
	if err != nil {
		return fmt.Errorf("failed to resolve session for %s: %w", telegramID, err)
	}

	if err := t.dbStore.UpdateUserProfile(telegramID, profile.Username, profile.FirstName, profile.LastName); err != nil {
		// Profile backfill is best-effort; triage continues without it.
		log.Printf("triage: profile update for %s failed: %v", telegramID, err)
	}

	if !session.Context.QuestionsAsked {
		return t.askIntakeQuestions(ctx, session, text)
	}
	return t.assess(ctx, session, text)
}

// askIntakeQuestions is the first-contact path: record what the user opened
// with, ask the standard detail questions, and move to AWAITING_DETAILS.
func (t *TriageService) askIntakeQuestions(ctx context.Context, session *store.Session, text string) error {
	if err := t.notifier.SendMessage(ctx, session.TelegramID, intakeQuestions); err != nil {
		return fmt.Errorf("failed to send intake questions: %w", err)
	}

	session.Context.QuestionsAsked = true
	session.Context.InitialSymptom = text
	session.CurrentQuestion = 1

	if session.SessionState == store.StateInitial {
		if _, err := t.sessions.Advance(session, EventDetailsRequested); err != nil {
			return fmt.Errorf("failed to advance to awaiting details: %w", err)
		}
		return nil
	}
	session.LastActivity = time.Now().UTC()
	return t.dbStore.UpdateSession(session)
}

// assess is the responding path: the user has answered the intake questions,
// so evaluate, persist a health record, reply, and settle the session.
func (t *TriageService) assess(ctx context.Context, session *store.Session, text string) error {
	user, err := t.dbStore.GetUserByTelegramID(session.TelegramID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", session.TelegramID, err)
	}

	history := make([]string, 0, len(session.SymptomsCollected))
	history = append(history, session.SymptomsCollected...)

	assessment, err := t.reasoning.Evaluate(ctx, text, session.Context, history)
	if err != nil {
		log.Printf("triage: evaluation for %s failed: %v", session.TelegramID, err)
		if sendErr := t.notifier.SendMessage(ctx, session.TelegramID, evaluateFallback); sendErr != nil {
			log.Printf("triage: fallback send to %s failed: %v", session.TelegramID, sendErr)
		}
		return nil
	}

	now := time.Now().UTC()
	record := &store.HealthRecord{
		TelegramID:      session.TelegramID,
		SessionID:       &session.ID,
		Symptoms:        assessment.Symptoms,
		RiskLevel:       assessment.RiskLevel,
		SeverityScore:   assessment.SeverityScore,
		ReportedAt:      now,
		Assessment:      assessment.ReplyText,
		Recommendations: assessment.Recommendations,
	}
	if user != nil {
		record.Location = user.Location
	}
	if delay, required := followupDelayFor(assessment.RiskLevel); required {
		due := now.Add(delay)
		record.RequiresFollowup = true
		record.FollowupDate = &due
	}
	if err := t.dbStore.InsertHealthRecord(record); err != nil {
		return fmt.Errorf("failed to persist health record: %w", err)
	}

	if err := t.notifier.SendMessage(ctx, session.TelegramID, assessment.ReplyText); err != nil {
		return fmt.Errorf("failed to send assessment: %w", err)
	}

	session.SymptomsCollected = append(session.SymptomsCollected, assessment.Symptoms...)
	session.Context.AssessmentComplete = true

	// A session already in FOLLOW_UP means this message answers a scheduled
	// check-in. Completion is the only legal exit from that state: a recovered
	// user closes the session, a still-at-risk one keeps the check-in loop
	// open with the refreshed record.
	if session.SessionState == store.StateFollowUp {
		if record.RequiresFollowup {
			session.LastActivity = time.Now().UTC()
			if err := t.dbStore.UpdateSession(session); err != nil {
				return fmt.Errorf("failed to refresh follow-up session: %w", err)
			}
			return nil
		}
		if err := t.sessions.Complete(session); err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}
		return nil
	}

	if _, err := t.sessions.Advance(session, EventAssessmentGiven); err != nil {
		return fmt.Errorf("failed to record assessment transition: %w", err)
	}

	if record.RequiresFollowup {
		if _, err := t.sessions.Advance(session, EventFollowUpScheduled); err != nil {
			return fmt.Errorf("failed to enter follow-up state: %w", err)
		}
		return nil
	}
	if err := t.sessions.Complete(session); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

func followupDelayFor(riskLevel string) (time.Duration, bool) {
	switch riskLevel {
	case store.RiskCritical:
		return criticalFollowupDelay, true
	case store.RiskHigh:
		return highFollowupDelay, true
	default:
		return 0, false
	}
}

// HandleStart handles the /start command: ensure the user exists and greet.
func (t *TriageService) HandleStart(ctx context.Context, telegramID string, profile Profile) error {
	if _, err := t.sessions.GetOrCreateActiveSession(telegramID); err != nil {
		return err
	}
	if err := t.dbStore.UpdateUserProfile(telegramID, profile.Username, profile.FirstName, profile.LastName); err != nil {
		log.Printf("triage: profile update for %s failed: %v", telegramID, err)
	}
	return t.notifier.SendMessage(ctx, telegramID, welcomeMessage)
}

// HandleHelp replies with the command overview.
func (t *TriageService) HandleHelp(ctx context.Context, telegramID string) error {
	t.touchActive(telegramID)
	return t.notifier.SendMessage(ctx, telegramID, welcomeMessage)
}

// HandleLanguage handles "/language <code>".
func (t *TriageService) HandleLanguage(ctx context.Context, telegramID, code string) error {
	t.touchActive(telegramID)
	code = strings.ToLower(strings.TrimSpace(code))
	if !supportedLanguages[code] {
		return t.notifier.SendMessage(ctx, telegramID, "Supported languages: en, hi, mr. Example: /language hi")
	}
	if err := t.dbStore.SetUserLanguage(telegramID, code); err != nil {
		return err
	}
	return t.notifier.SendMessage(ctx, telegramID, fmt.Sprintf("Language set to %s.", code))
}

// touchActive records command activity on the user's open conversation, if
// any, so a timeout policy sees the user is still engaged.
func (t *TriageService) touchActive(telegramID string) {
	session, err := t.dbStore.GetActiveSession(telegramID)
	if err != nil || session == nil {
		return
	}
	if err := t.sessions.Touch(session); err != nil {
		log.Printf("triage: failed to touch session for %s: %v", telegramID, err)
	}
}

// HandleStatus replies with the user's most recent health reports.
func (t *TriageService) HandleStatus(ctx context.Context, telegramID string) error {
	t.touchActive(telegramID)
	records, err := t.dbStore.GetHealthRecordsByUser(telegramID, 5)
	if err != nil {
		return fmt.Errorf("failed to load records for %s: %w", telegramID, err)
	}
	if len(records) == 0 {
		return t.notifier.SendMessage(ctx, telegramID,
			"No symptoms reported yet. Describe how you feel to start an assessment.")
	}

	latest := records[0]
	hoursAgo := int(time.Since(latest.ReportedAt).Hours())
	var b strings.Builder
	b.WriteString("Your health status\n\n")
	fmt.Fprintf(&b, "Latest assessment: %dh ago\n", hoursAgo)
	fmt.Fprintf(&b, "Risk: %s, severity %.1f/10\n", strings.ToUpper(latest.RiskLevel), latest.SeverityScore)
	fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(latest.Symptoms, ", "))
	if latest.RequiresFollowup && !latest.FollowupCompleted {
		b.WriteString("A follow-up check-in is scheduled.\n")
	}
	fmt.Fprintf(&b, "\nHistory: %d report(s). Type new symptoms to update your status.", len(records))
	return t.notifier.SendMessage(ctx, telegramID, b.String())
}
