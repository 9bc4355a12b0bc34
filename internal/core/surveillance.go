package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"swasthai.dev/health-sentinel/internal/store"
)

// significantScore is the anomaly-score floor above which a finding is worth
// escalating to the alert dispatcher.
const significantScore = 2.0

// SurveillanceStore is the slice of the store the engine reads and writes.
type SurveillanceStore interface {
	GetHealthRecordsInWindow(start, end time.Time) ([]store.HealthRecord, error)
	InsertSurveillanceLog(logEntry *store.SurveillanceLog) error
}

// Dispatcher turns a set of significant anomalies into at most one alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, anomalies []store.Anomaly, window Window) (*store.Alert, error)
}

// Window is the trailing interval scanned by one surveillance run.
type Window struct {
	Start time.Time
	End   time.Time
}

// SurveillanceEngine scans a trailing window of health records for anomalous
// (symptom, location) clustering. Each run is stateless: everything is
// re-read from the store, so a crashed run simply retries on the next tick.
type SurveillanceEngine struct {
	dbStore         SurveillanceStore
	dispatcher      Dispatcher
	threshold       int
	baselineWindows int
	now             func() time.Time
}

func NewSurveillanceEngine(db SurveillanceStore, dispatcher Dispatcher, threshold, baselineWindows int) *SurveillanceEngine {
	if threshold < 1 {
		threshold = 1
	}
	if baselineWindows < 1 {
		baselineWindows = 1
	}
	return &SurveillanceEngine{
		dbStore:         db,
		dispatcher:      dispatcher,
		threshold:       threshold,
		baselineWindows: baselineWindows,
		now:             time.Now,
	}
}

// RunSurveillance executes one surveillance pass over [now-windowHours, now].
// Exactly one SurveillanceLog is written per completed run; a failed store
// query aborts without a log so an absent run stays distinguishable from a
// completed clean one.
func (e *SurveillanceEngine) RunSurveillance(ctx context.Context, windowHours int) (*store.SurveillanceLog, error) {
	end := e.now().UTC()
	start := end.Add(-time.Duration(windowHours) * time.Hour)

	records, err := e.dbStore.GetHealthRecordsInWindow(start, end)
	if err != nil {
		return nil, fmt.Errorf("surveillance window query failed: %w", err)
	}

	symptomCounts := make(map[string]int)
	locationCounts := make(map[string]int)
	pairCounts := make(map[pairKey]int)
	for _, record := range records {
		location := normalizeLocation(record.Location)
		locationCounts[location]++
		for _, symptom := range record.Symptoms {
			symptom = normalizeSymptom(symptom)
			if symptom == "" {
				continue
			}
			symptomCounts[symptom]++
			pairCounts[pairKey{symptom, location}]++
		}
	}

	anomalies, err := e.detectAnomalies(start, end, pairCounts)
	if err != nil {
		return nil, err
	}

	logEntry := &store.SurveillanceLog{
		RunAt:             end,
		WindowStart:       start,
		WindowEnd:         end,
		TotalReports:      len(records),
		SymptomCounts:     symptomCounts,
		LocationCounts:    locationCounts,
		AnomaliesDetected: anomalies,
	}

	significant := filterSignificant(anomalies)
	if len(significant) > 0 {
		logEntry.AlertTriggered = true
		alert, err := e.dispatcher.Dispatch(ctx, significant, Window{Start: start, End: end})
		if err != nil {
			// The run itself still completed; record it without an alert id.
			log.Printf("surveillance: alert dispatch failed: %v", err)
		} else if alert != nil {
			logEntry.AlertID = &alert.ID
		}
	}

	if err := e.dbStore.InsertSurveillanceLog(logEntry); err != nil {
		return nil, fmt.Errorf("failed to persist surveillance log: %w", err)
	}
	return logEntry, nil
}

type pairKey struct {
	symptom  string
	location string
}

// detectAnomalies scores every pair at or above the case threshold against a
// rolling baseline built from the preceding equal-length windows.
func (e *SurveillanceEngine) detectAnomalies(start, end time.Time, pairCounts map[pairKey]int) ([]store.Anomaly, error) {
	var flagged []pairKey
	for key, count := range pairCounts {
		if count >= e.threshold {
			flagged = append(flagged, key)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}

	baselines, err := e.baselineCounts(start, end)
	if err != nil {
		return nil, err
	}

	anomalies := make([]store.Anomaly, 0, len(flagged))
	for _, key := range flagged {
		count := pairCounts[key]
		baseline := baselines[key] / float64(e.baselineWindows)
		if baseline < 1 {
			baseline = 1
		}
		anomalies = append(anomalies, store.Anomaly{
			Symptom:  key.symptom,
			Location: key.location,
			Count:    count,
			Score:    float64(count) / baseline,
		})
	}

	sort.Slice(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Symptom != b.Symptom {
			return a.Symptom < b.Symptom
		}
		return a.Location < b.Location
	})
	return anomalies, nil
}

// baselineCounts sums per-pair counts over the baselineWindows windows that
// precede the current one, all of the same length.
func (e *SurveillanceEngine) baselineCounts(start, end time.Time) (map[pairKey]float64, error) {
	windowLen := end.Sub(start)
	baselineStart := start.Add(-time.Duration(e.baselineWindows) * windowLen)

	records, err := e.dbStore.GetHealthRecordsInWindow(baselineStart, start)
	if err != nil {
		return nil, fmt.Errorf("surveillance baseline query failed: %w", err)
	}

	totals := make(map[pairKey]float64)
	for _, record := range records {
		location := normalizeLocation(record.Location)
		for _, symptom := range record.Symptoms {
			symptom = normalizeSymptom(symptom)
			if symptom == "" {
				continue
			}
			totals[pairKey{symptom, location}]++
		}
	}
	return totals, nil
}

func filterSignificant(anomalies []store.Anomaly) []store.Anomaly {
	var significant []store.Anomaly
	for _, anomaly := range anomalies {
		if anomaly.Score >= significantScore {
			significant = append(significant, anomaly)
		}
	}
	return significant
}

func normalizeSymptom(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeLocation(location *string) string {
	if location == nil {
		return "unknown"
	}
	normalized := strings.ToLower(strings.TrimSpace(*location))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
