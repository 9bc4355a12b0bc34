package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"swasthai.dev/health-sentinel/internal/store"
)

// Notifier is the outbound messaging contract. Implementations live in
// internal/notify; the core never composes transport-level details.
type Notifier interface {
	SendMessage(ctx context.Context, telegramID, text string) error
	Broadcast(ctx context.Context, location, text string) error
	NotifyAuthority(ctx context.Context, payload AuthorityPayload) error
}

// AuthorityPayload is the structured escalation report sent to the public
// health authority endpoint.
type AuthorityPayload struct {
	AlertID          string          `json:"alert_id"`
	Severity         string          `json:"severity"`
	Title            string          `json:"title"`
	Message          string          `json:"message"`
	AffectedLocation string          `json:"affected_location"`
	Anomalies        []store.Anomaly `json:"anomalies"`
	CaseCount        int             `json:"case_count"`
	WindowStart      time.Time       `json:"window_start"`
	WindowEnd        time.Time       `json:"window_end"`
}

// AlertStore is the slice of the store the dispatcher reads and writes.
type AlertStore interface {
	InsertAlert(alert *store.Alert) error
	MarkAlertSentToAuthorities(alertID string) error
	GetUnresolvedAlerts(since time.Time) ([]store.Alert, error)
}

// AlertDispatcher aggregates the significant anomalies of one surveillance
// run into a single alert and decides how far to escalate it. One alert per
// run, not one per anomaly, to avoid notification storms.
type AlertDispatcher struct {
	dbStore  AlertStore
	notifier Notifier
}

func NewAlertDispatcher(db AlertStore, notifier Notifier) *AlertDispatcher {
	return &AlertDispatcher{dbStore: db, notifier: notifier}
}

// Dispatch persists the aggregated alert and, for high and critical severity,
// notifies the authorities synchronously. A failed authority notification is
// logged but never rolls back the alert record: an unreported alert recorded
// beats one lost entirely.
//
// A spike that persists across surveillance ticks escalates once: anomalies
// whose pair is already covered by an unresolved alert raised inside the
// current window are dropped until an operator resolves that alert.
func (d *AlertDispatcher) Dispatch(ctx context.Context, anomalies []store.Anomaly, window Window) (*store.Alert, error) {
	if len(anomalies) == 0 {
		return nil, nil
	}
	anomalies = d.withoutOpenAlerts(anomalies, window.Start)
	if len(anomalies) == 0 {
		return nil, nil
	}

	// Anomalies arrive in deterministic order with the strongest first.
	top := anomalies[0]
	severity := severityForScore(top.Score)

	caseCount := 0
	var symptoms []string
	seen := make(map[string]bool)
	for _, anomaly := range anomalies {
		caseCount += anomaly.Count
		if !seen[anomaly.Symptom] {
			seen[anomaly.Symptom] = true
			symptoms = append(symptoms, anomaly.Symptom)
		}
	}

	location := top.Location
	alert := &store.Alert{
		AlertType:        "outbreak_spike",
		Severity:         severity,
		Title:            fmt.Sprintf("Unusual %s cluster in %s", top.Symptom, location),
		Message:          alertMessage(anomalies, window),
		AffectedLocation: &location,
		AffectedSymptoms: symptoms,
		CaseCount:        caseCount,
		AnomalyScore:     top.Score,
		CreatedAt:        time.Now().UTC(),
	}
	if err := d.dbStore.InsertAlert(alert); err != nil {
		return nil, fmt.Errorf("failed to persist alert: %w", err)
	}

	if severity == store.RiskHigh || severity == store.RiskCritical {
		payload := AuthorityPayload{
			AlertID:          alert.ID,
			Severity:         severity,
			Title:            alert.Title,
			Message:          alert.Message,
			AffectedLocation: location,
			Anomalies:        anomalies,
			CaseCount:        caseCount,
			WindowStart:      window.Start,
			WindowEnd:        window.End,
		}
		if err := d.notifier.NotifyAuthority(ctx, payload); err != nil {
			log.Printf("alert %s: authority notification failed: %v", alert.ID, err)
		} else {
			alert.SentToAuthorities = true
			if err := d.dbStore.MarkAlertSentToAuthorities(alert.ID); err != nil {
				log.Printf("alert %s: failed to record authority notification: %v", alert.ID, err)
			}
		}
	}

	if severity == store.RiskCritical {
		text := fmt.Sprintf(
			"Health advisory for %s: an unusual rise in %s cases has been detected in your area. "+
				"If you have these symptoms, please monitor them closely and seek care if they worsen.",
			location, strings.Join(symptoms, ", "))
		if err := d.notifier.Broadcast(ctx, location, text); err != nil {
			log.Printf("alert %s: community broadcast failed: %v", alert.ID, err)
		}
	}

	return alert, nil
}

// withoutOpenAlerts filters out anomalies whose (symptom, location) pair is
// already covered by an unresolved alert created after since. A failed lookup
// disables the dedup for this run: a duplicate escalation beats a lost one.
func (d *AlertDispatcher) withoutOpenAlerts(anomalies []store.Anomaly, since time.Time) []store.Anomaly {
	open, err := d.dbStore.GetUnresolvedAlerts(since)
	if err != nil {
		log.Printf("alerts: failed to load open alerts, dispatching without dedup: %v", err)
		return anomalies
	}

	covered := make(map[pairKey]bool)
	for _, alert := range open {
		if alert.AffectedLocation == nil {
			continue
		}
		for _, symptom := range alert.AffectedSymptoms {
			covered[pairKey{symptom, *alert.AffectedLocation}] = true
		}
	}

	var fresh []store.Anomaly
	for _, anomaly := range anomalies {
		if covered[pairKey{anomaly.Symptom, anomaly.Location}] {
			continue
		}
		fresh = append(fresh, anomaly)
	}
	if dropped := len(anomalies) - len(fresh); dropped > 0 {
		log.Printf("alerts: %d anomaly(ies) already covered by an open alert", dropped)
	}
	return fresh
}

// severityForScore maps an anomaly score to alert severity. Scores below the
// significance floor never reach the dispatcher.
func severityForScore(score float64) string {
	switch {
	case score >= 4.0:
		return store.RiskCritical
	case score >= 3.0:
		return store.RiskHigh
	default:
		return store.RiskModerate
	}
}

func alertMessage(anomalies []store.Anomaly, window Window) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Surveillance window %s to %s detected %d anomalous symptom cluster(s):\n",
		window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), len(anomalies))
	for _, anomaly := range anomalies {
		fmt.Fprintf(&b, "- %s in %s: %d cases (%.1fx baseline)\n",
			anomaly.Symptom, anomaly.Location, anomaly.Count, anomaly.Score)
	}
	return b.String()
}
