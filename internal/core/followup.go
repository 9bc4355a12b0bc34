package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"swasthai.dev/health-sentinel/internal/store"
)

// FollowUpStore is the slice of the store the sweep needs.
type FollowUpStore interface {
	GetDueFollowups(now time.Time, limit int) ([]store.HealthRecord, error)
	GetUserByTelegramID(telegramID string) (*store.User, error)
	MarkFollowupCompleted(recordID string) (bool, error)
}

// FollowUpPayload is the structured reminder content built from the due
// record's prior assessment.
type FollowUpPayload struct {
	TelegramID      string    `json:"telegram_id"`
	Symptoms        []string  `json:"symptoms"`
	RiskLevel       string    `json:"risk_level"`
	SeverityScore   float64   `json:"severity_score"`
	Recommendations []string  `json:"recommendations"`
	ReportedAt      time.Time `json:"reported_at"`
	FollowupType    string    `json:"followup_type"`
}

// SweepResult summarizes one follow-up sweep. Failures are data here, not
// control flow: a failed record never aborts the batch.
type SweepResult struct {
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

// FollowUpScheduler finds due, incomplete follow-ups and contacts each user
// once per due reminder. The notification is sent before the completion mark,
// so a crash between the two can cause one duplicate reminder but never a
// silently dropped one.
type FollowUpScheduler struct {
	dbStore  FollowUpStore
	notifier Notifier
	now      func() time.Time
}

func NewFollowUpScheduler(db FollowUpStore, notifier Notifier) *FollowUpScheduler {
	return &FollowUpScheduler{dbStore: db, notifier: notifier, now: time.Now}
}

// RunFollowUpSweep processes up to limit due records, oldest due first.
func (f *FollowUpScheduler) RunFollowUpSweep(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult

	records, err := f.dbStore.GetDueFollowups(f.now().UTC(), limit)
	if err != nil {
		return result, fmt.Errorf("due follow-up query failed: %w", err)
	}
	if len(records) == 0 {
		return result, nil
	}
	log.Printf("followup: %d follow-ups due", len(records))

	for _, record := range records {
		if err := f.dispatchOne(ctx, record); err != nil {
			log.Printf("followup: record %s for user %s failed: %v", record.ID, record.TelegramID, err)
			result.Failed++
			continue
		}
		result.Dispatched++
	}
	return result, nil
}

func (f *FollowUpScheduler) dispatchOne(ctx context.Context, record store.HealthRecord) error {
	user, err := f.dbStore.GetUserByTelegramID(record.TelegramID)
	if err != nil {
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	if user == nil {
		// The record can never succeed without manual data repair; retire it
		// so it does not clog every future sweep.
		if _, markErr := f.dbStore.MarkFollowupCompleted(record.ID); markErr != nil {
			log.Printf("followup: failed to retire orphaned record %s: %v", record.ID, markErr)
		}
		return fmt.Errorf("no user for telegram id %s", record.TelegramID)
	}

	payload := FollowUpPayload{
		TelegramID:      record.TelegramID,
		Symptoms:        record.Symptoms,
		RiskLevel:       record.RiskLevel,
		SeverityScore:   record.SeverityScore,
		Recommendations: record.Recommendations,
		ReportedAt:      record.ReportedAt,
		FollowupType:    "scheduled",
	}

	if err := f.notifier.SendMessage(ctx, user.TelegramID, followUpMessage(payload)); err != nil {
		return fmt.Errorf("failed to send follow-up: %w", err)
	}

	// Conditional flip of followup_completed. If this write fails the record
	// stays eligible and the next sweep re-sends: at-least-once by choice.
	flipped, err := f.dbStore.MarkFollowupCompleted(record.ID)
	if err != nil {
		log.Printf("followup: sent but failed to mark record %s completed, will retry next sweep: %v", record.ID, err)
		return nil
	}
	if !flipped {
		log.Printf("followup: record %s was already marked completed by a concurrent sweep", record.ID)
	}
	return nil
}

func followUpMessage(payload FollowUpPayload) string {
	var b strings.Builder
	b.WriteString("Hello! This is your scheduled health check-in.\n\n")
	fmt.Fprintf(&b, "On %s you reported: %s (risk: %s, severity %.1f/10).\n\n",
		payload.ReportedAt.Format("Jan 2"), strings.Join(payload.Symptoms, ", "),
		payload.RiskLevel, payload.SeverityScore)
	b.WriteString("How are you feeling now? Reply with an update on your symptoms.\n")
	if len(payload.Recommendations) > 0 {
		b.WriteString("\nA reminder of your earlier recommendations:\n")
		for _, rec := range payload.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	return b.String()
}
