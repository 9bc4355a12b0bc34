package store

import "time"

// RiskLevel values as assessed by the reasoning engine.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Session states. A user has at most one session whose state is not
// StateCompleted at any time.
const (
	StateInitial         = "initial"
	StateAwaitingDetails = "awaiting_details"
	StateAssessmentGiven = "assessment_given"
	StateFollowUp        = "follow_up"
	StateCompleted       = "completed"
)

type User struct {
	ID                string    `json:"id"` // UUID
	TelegramID        string    `json:"telegram_id"`
	Username          *string   `json:"username"`
	FirstName         *string   `json:"first_name"`
	LastName          *string   `json:"last_name"`
	PhoneNumber       *string   `json:"phone_number"`
	Location          *string   `json:"location"`
	PreferredLanguage string    `json:"preferred_language"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SessionContext is the conversation memory carried across turns. The named
// fields are the keys the triage flow actually consumes; Extra keeps room for
// forward-compatible data without a schema change.
type SessionContext struct {
	QuestionsAsked     bool              `json:"questions_asked,omitempty"`
	InitialSymptom     string            `json:"initial_symptom,omitempty"`
	AssessmentComplete bool              `json:"assessment_complete,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

type Session struct {
	ID                string         `json:"id"` // UUID
	TelegramID        string         `json:"telegram_id"`
	SessionState      string         `json:"session_state"`
	Context           SessionContext `json:"context"`
	CurrentQuestion   int            `json:"current_question"`
	SymptomsCollected []string       `json:"symptoms_collected"`
	StartedAt         time.Time      `json:"started_at"`
	LastActivity      time.Time      `json:"last_activity"`
	CompletedAt       *time.Time     `json:"completed_at"`
}

// HealthRecord is immutable once written except for the followup pair, which
// FollowUpScheduler flips false->true exactly once.
type HealthRecord struct {
	ID                string     `json:"id"` // UUID
	TelegramID        string     `json:"telegram_id"`
	SessionID         *string    `json:"session_id"`
	Symptoms          []string   `json:"symptoms"`
	RiskLevel         string     `json:"risk_level"`
	SeverityScore     float64    `json:"severity_score"` // 0-10
	Location          *string    `json:"location"`
	ReportedAt        time.Time  `json:"reported_at"`
	Assessment        string     `json:"assessment"`
	Recommendations   []string   `json:"recommendations"`
	RequiresFollowup  bool       `json:"requires_followup"`
	FollowupDate      *time.Time `json:"followup_date"`
	FollowupCompleted bool       `json:"followup_completed"`
	CreatedAt         time.Time  `json:"created_at"`
}

type Alert struct {
	ID                string     `json:"id"` // UUID
	AlertType         string     `json:"alert_type"`
	Severity          string     `json:"severity"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	AffectedLocation  *string    `json:"affected_location"`
	AffectedSymptoms  []string   `json:"affected_symptoms"`
	CaseCount         int        `json:"case_count"`
	AnomalyScore      float64    `json:"anomaly_score"`
	SentToAuthorities bool       `json:"sent_to_authorities"`
	IsResolved        bool       `json:"is_resolved"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at"`
}

// Anomaly is one structured finding inside a surveillance run.
type Anomaly struct {
	Symptom  string  `json:"symptom"`
	Location string  `json:"location"`
	Count    int     `json:"count"`
	Score    float64 `json:"anomaly_score"`
}

// SurveillanceLog is the audit record of one surveillance run. Written once
// per completed run, never mutated afterward.
type SurveillanceLog struct {
	ID                string         `json:"id"` // UUID
	RunAt             time.Time      `json:"run_at"`
	WindowStart       time.Time      `json:"window_start"`
	WindowEnd         time.Time      `json:"window_end"`
	TotalReports      int            `json:"total_reports"`
	SymptomCounts     map[string]int `json:"symptom_counts"`
	LocationCounts    map[string]int `json:"location_counts"`
	AnomaliesDetected []Anomaly      `json:"anomalies_detected"`
	AlertTriggered    bool           `json:"alert_triggered"`
	AlertID           *string        `json:"alert_id"`
}
