package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"swasthai.dev/health-sentinel/internal/store"
)

// fakeTriageStore layers the intake-path store methods on top of the session
// fake so one backend serves the whole service.
type fakeTriageStore struct {
	*fakeSessionStore
	records []*store.HealthRecord
}

func newFakeTriageStore() *fakeTriageStore {
	return &fakeTriageStore{fakeSessionStore: newFakeSessionStore()}
}

func (f *fakeTriageStore) GetUserByTelegramID(telegramID string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[telegramID]
	if !ok {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeTriageStore) UpdateUserProfile(telegramID string, username, firstName, lastName *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[telegramID]; ok {
		if username != nil {
			user.Username = username
		}
		if firstName != nil {
			user.FirstName = firstName
		}
		if lastName != nil {
			user.LastName = lastName
		}
	}
	return nil
}

func (f *fakeTriageStore) SetUserLanguage(telegramID, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[telegramID]; ok {
		user.PreferredLanguage = language
	}
	return nil
}

func (f *fakeTriageStore) InsertHealthRecord(record *store.HealthRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *record
	f.records = append(f.records, &stored)
	return nil
}

func (f *fakeTriageStore) GetHealthRecordsByUser(telegramID string, limit int) ([]store.HealthRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.HealthRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].TelegramID == telegramID {
			out = append(out, *f.records[i])
		}
	}
	return out, nil
}

// stubReasoning returns a canned assessment or a canned failure. When queue is
// set, each call pops the next assessment so a test can script a conversation.
type stubReasoning struct {
	assessment *Assessment
	queue      []*Assessment
	err        error
	calls      int
}

func (s *stubReasoning) Evaluate(ctx context.Context, message string, sessCtx store.SessionContext, history []string) (*Assessment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		return next, nil
	}
	return s.assessment, nil
}

func newTriageHarness(reasoning ReasoningEngine) (*TriageService, *fakeTriageStore, *recordingNotifier) {
	dbStore := newFakeTriageStore()
	notifier := &recordingNotifier{}
	service := NewTriageService(NewSessionManager(dbStore.fakeSessionStore), dbStore, reasoning, notifier)
	return service, dbStore, notifier
}

func TestHandleMessage_FirstContactAsksIntakeQuestions(t *testing.T) {
	service, dbStore, notifier := newTriageHarness(&stubReasoning{})

	if err := service.HandleMessage(context.Background(), "1001", Profile{}, "I have a fever"); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if got := notifier.sentTo("1001"); got != 1 {
		t.Fatalf("expected 1 outbound message, got %d", got)
	}
	if notifier.messages[0].text != intakeQuestions {
		t.Error("first contact must get the intake questions")
	}

	session, err := dbStore.GetActiveSession("1001")
	if err != nil || session == nil {
		t.Fatalf("expected an active session: %v", err)
	}
	if session.SessionState != store.StateAwaitingDetails {
		t.Errorf("expected awaiting_details, got %s", session.SessionState)
	}
	if !session.Context.QuestionsAsked {
		t.Error("expected questions_asked to be set")
	}
	if session.Context.InitialSymptom != "I have a fever" {
		t.Errorf("expected opening message recorded, got %q", session.Context.InitialSymptom)
	}
	if len(dbStore.records) != 0 {
		t.Error("no health record before the user answers the questions")
	}
}

func TestHandleMessage_LowRiskAssessmentCompletesSession(t *testing.T) {
	reasoning := &stubReasoning{assessment: &Assessment{
		RiskLevel:       store.RiskLow,
		SeverityScore:   2,
		Symptoms:        []string{"fever", "cough"},
		Recommendations: []string{"Rest and hydrate"},
		ReplyText:       "Your symptoms look mild. Rest and hydrate.",
	}}
	service, dbStore, notifier := newTriageHarness(reasoning)

	ctx := context.Background()
	if err := service.HandleMessage(ctx, "1001", Profile{}, "I have a fever"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune, no other symptoms, no conditions"); err != nil {
		t.Fatalf("answer message failed: %v", err)
	}

	if reasoning.calls != 1 {
		t.Errorf("expected one evaluation, got %d", reasoning.calls)
	}
	if len(dbStore.records) != 1 {
		t.Fatalf("expected one health record, got %d", len(dbStore.records))
	}
	record := dbStore.records[0]
	if record.RiskLevel != store.RiskLow || record.RequiresFollowup {
		t.Errorf("low risk record must not require follow-up: %+v", record)
	}
	if record.SessionID == nil {
		t.Error("expected the record to reference its session")
	}

	// The assessment reply went out after the intake questions.
	if got := notifier.sentTo("1001"); got != 2 {
		t.Fatalf("expected 2 outbound messages, got %d", got)
	}
	if !strings.Contains(notifier.messages[1].text, "mild") {
		t.Errorf("expected the reasoning reply, got %q", notifier.messages[1].text)
	}

	// Low risk closes the conversation.
	session, err := dbStore.GetActiveSession("1001")
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if session != nil {
		t.Errorf("expected no active session after a low risk assessment, got %s", session.SessionState)
	}
}

func TestHandleMessage_HighRiskSchedulesFollowUp(t *testing.T) {
	reasoning := &stubReasoning{assessment: &Assessment{
		RiskLevel:     store.RiskHigh,
		SeverityScore: 7,
		Symptoms:      []string{"fever", "breathlessness"},
		ReplyText:     "Please see a doctor within 24 hours.",
	}}
	service, dbStore, _ := newTriageHarness(reasoning)

	ctx := context.Background()
	if err := service.HandleMessage(ctx, "1001", Profile{}, "fever and breathlessness"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune, nothing else"); err != nil {
		t.Fatalf("answer message failed: %v", err)
	}

	record := dbStore.records[0]
	if !record.RequiresFollowup || record.FollowupDate == nil {
		t.Fatal("high risk must schedule a follow-up")
	}
	lead := record.FollowupDate.Sub(record.ReportedAt)
	if lead != highFollowupDelay {
		t.Errorf("expected %v follow-up lead, got %v", highFollowupDelay, lead)
	}

	session, err := dbStore.GetActiveSession("1001")
	if err != nil || session == nil {
		t.Fatalf("expected the session to stay open for follow-up: %v", err)
	}
	if session.SessionState != store.StateFollowUp {
		t.Errorf("expected follow_up state, got %s", session.SessionState)
	}
}

func TestHandleMessage_FollowUpReplyCompletesOnRecovery(t *testing.T) {
	reasoning := &stubReasoning{queue: []*Assessment{
		{
			RiskLevel:     store.RiskHigh,
			SeverityScore: 7,
			Symptoms:      []string{"fever", "breathlessness"},
			ReplyText:     "Please see a doctor within 24 hours.",
		},
		{
			RiskLevel:     store.RiskLow,
			SeverityScore: 1,
			Symptoms:      []string{"mild cough"},
			ReplyText:     "Glad you are recovering. Keep resting.",
		},
	}}
	service, dbStore, _ := newTriageHarness(reasoning)

	ctx := context.Background()
	if err := service.HandleMessage(ctx, "1001", Profile{}, "fever and breathlessness"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune, nothing else"); err != nil {
		t.Fatalf("answer message failed: %v", err)
	}

	// The scheduled check-in arrives and the user reports recovery.
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Feeling much better now"); err != nil {
		t.Fatalf("check-in reply failed: %v", err)
	}

	if len(dbStore.records) != 2 {
		t.Fatalf("expected 2 health records, got %d", len(dbStore.records))
	}
	update := dbStore.records[1]
	if update.RiskLevel != store.RiskLow || update.RequiresFollowup {
		t.Errorf("a recovered check-in reply must not schedule another follow-up: %+v", update)
	}

	session, err := dbStore.GetActiveSession("1001")
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if session != nil {
		t.Errorf("recovery must close the conversation, got state %s", session.SessionState)
	}
}

func TestHandleMessage_FollowUpReplyKeepsSessionOnContinuedRisk(t *testing.T) {
	reasoning := &stubReasoning{queue: []*Assessment{
		{
			RiskLevel:     store.RiskHigh,
			SeverityScore: 7,
			Symptoms:      []string{"fever", "breathlessness"},
			ReplyText:     "Please see a doctor within 24 hours.",
		},
		{
			RiskLevel:     store.RiskHigh,
			SeverityScore: 8,
			Symptoms:      []string{"worsening breathlessness"},
			ReplyText:     "Please go to a hospital now.",
		},
	}}
	service, dbStore, _ := newTriageHarness(reasoning)

	ctx := context.Background()
	if err := service.HandleMessage(ctx, "1001", Profile{}, "fever and breathlessness"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune, nothing else"); err != nil {
		t.Fatalf("answer message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "It got worse"); err != nil {
		t.Fatalf("check-in reply failed: %v", err)
	}

	if len(dbStore.records) != 2 {
		t.Fatalf("expected 2 health records, got %d", len(dbStore.records))
	}
	update := dbStore.records[1]
	if !update.RequiresFollowup || update.FollowupDate == nil {
		t.Fatal("a still-at-risk check-in reply must schedule the next follow-up")
	}

	session, err := dbStore.GetActiveSession("1001")
	if err != nil || session == nil {
		t.Fatalf("expected the session to stay open: %v", err)
	}
	if session.SessionState != store.StateFollowUp {
		t.Errorf("expected follow_up state, got %s", session.SessionState)
	}
	if len(session.SymptomsCollected) < 3 {
		t.Errorf("expected the new symptoms appended, got %v", session.SymptomsCollected)
	}
}

func TestHandleHelp_RecordsActivityOnOpenSession(t *testing.T) {
	service, dbStore, _ := newTriageHarness(&stubReasoning{})
	ctx := context.Background()

	if err := service.HandleMessage(ctx, "1001", Profile{}, "I have a fever"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	session, err := dbStore.GetActiveSession("1001")
	if err != nil || session == nil {
		t.Fatalf("expected an active session: %v", err)
	}

	stale := time.Now().UTC().Add(-2 * time.Hour)
	dbStore.sessions[session.ID].LastActivity = stale

	if err := service.HandleHelp(ctx, "1001"); err != nil {
		t.Fatalf("HandleHelp failed: %v", err)
	}
	if !dbStore.sessions[session.ID].LastActivity.After(stale) {
		t.Error("a command on an open session must refresh last_activity")
	}

	// No open session, the command still answers without error.
	if err := service.HandleHelp(ctx, "2002"); err != nil {
		t.Fatalf("HandleHelp without a session failed: %v", err)
	}
}

func TestHandleMessage_CriticalUsesShorterLead(t *testing.T) {
	reasoning := &stubReasoning{assessment: &Assessment{
		RiskLevel:     store.RiskCritical,
		SeverityScore: 9,
		Symptoms:      []string{"chest pain"},
		ReplyText:     "Seek emergency care immediately.",
	}}
	service, dbStore, _ := newTriageHarness(reasoning)

	ctx := context.Background()
	if err := service.HandleMessage(ctx, "1001", Profile{}, "severe chest pain"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune"); err != nil {
		t.Fatalf("answer message failed: %v", err)
	}

	record := dbStore.records[0]
	if lead := record.FollowupDate.Sub(record.ReportedAt); lead != criticalFollowupDelay {
		t.Errorf("expected %v follow-up lead, got %v", criticalFollowupDelay, lead)
	}
}

func TestHandleMessage_EvaluationFailureSendsFallback(t *testing.T) {
	reasoning := &stubReasoning{err: errors.New("model unavailable")}
	service, dbStore, notifier := newTriageHarness(reasoning)

	ctx := context.Background()
	if err := service.HandleMessage(ctx, "1001", Profile{}, "I have a fever"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune"); err != nil {
		t.Fatalf("a reasoning outage must not surface as a handler error: %v", err)
	}

	last := notifier.messages[len(notifier.messages)-1]
	if last.text != evaluateFallback {
		t.Errorf("expected the fallback reply, got %q", last.text)
	}
	if len(dbStore.records) != 0 {
		t.Error("no health record may be written for a failed evaluation")
	}

	// The session is still open, so the user can simply try again.
	session, err := dbStore.GetActiveSession("1001")
	if err != nil || session == nil {
		t.Fatalf("expected the session to survive the outage: %v", err)
	}
	if session.SessionState != store.StateAwaitingDetails {
		t.Errorf("expected awaiting_details, got %s", session.SessionState)
	}
}

func TestHandleStart_GreetsAndCreatesUser(t *testing.T) {
	service, dbStore, notifier := newTriageHarness(&stubReasoning{})

	username := "asha"
	if err := service.HandleStart(context.Background(), "1001", Profile{Username: &username}); err != nil {
		t.Fatalf("HandleStart failed: %v", err)
	}
	if notifier.messages[0].text != welcomeMessage {
		t.Error("expected the welcome message")
	}
	user, err := dbStore.GetUserByTelegramID("1001")
	if err != nil || user == nil {
		t.Fatalf("expected user to exist: %v", err)
	}
	if user.Username == nil || *user.Username != "asha" {
		t.Error("expected the profile username to be backfilled")
	}
}

func TestHandleLanguage(t *testing.T) {
	service, dbStore, notifier := newTriageHarness(&stubReasoning{})
	ctx := context.Background()

	if err := service.HandleStart(ctx, "1001", Profile{}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := service.HandleLanguage(ctx, "1001", " HI "); err != nil {
		t.Fatalf("HandleLanguage failed: %v", err)
	}
	user, _ := dbStore.GetUserByTelegramID("1001")
	if user.PreferredLanguage != "hi" {
		t.Errorf("expected language hi, got %s", user.PreferredLanguage)
	}

	if err := service.HandleLanguage(ctx, "1001", "fr"); err != nil {
		t.Fatalf("unsupported language must not error: %v", err)
	}
	user, _ = dbStore.GetUserByTelegramID("1001")
	if user.PreferredLanguage != "hi" {
		t.Error("unsupported language must not change the stored preference")
	}
	last := notifier.messages[len(notifier.messages)-1]
	if !strings.Contains(last.text, "Supported languages") {
		t.Errorf("expected the supported-language hint, got %q", last.text)
	}
}

func TestHandleStatus(t *testing.T) {
	reasoning := &stubReasoning{assessment: &Assessment{
		RiskLevel:     store.RiskModerate,
		SeverityScore: 4,
		Symptoms:      []string{"fever"},
		ReplyText:     "Monitor your temperature.",
	}}
	service, _, notifier := newTriageHarness(reasoning)
	ctx := context.Background()

	if err := service.HandleStatus(ctx, "1001"); err != nil {
		t.Fatalf("HandleStatus failed: %v", err)
	}
	if !strings.Contains(notifier.messages[0].text, "No symptoms reported yet") {
		t.Errorf("expected the empty-history reply, got %q", notifier.messages[0].text)
	}

	if err := service.HandleMessage(ctx, "1001", Profile{}, "fever"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if err := service.HandleMessage(ctx, "1001", Profile{}, "Pune"); err != nil {
		t.Fatalf("answer message failed: %v", err)
	}
	if err := service.HandleStatus(ctx, "1001"); err != nil {
		t.Fatalf("HandleStatus after report failed: %v", err)
	}
	last := notifier.messages[len(notifier.messages)-1]
	if !strings.Contains(last.text, "MODERATE") || !strings.Contains(last.text, "fever") {
		t.Errorf("expected the latest assessment in the status reply, got %q", last.text)
	}
}
