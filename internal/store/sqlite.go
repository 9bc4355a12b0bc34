package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrActiveSessionExists is returned by CreateSession when another
// non-completed session for the same user already exists. Callers are
// expected to re-fetch the winner.
var ErrActiveSessionExists = errors.New("active session already exists for user")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time; funneling all access through a
	// single connection turns concurrent writes into queued ones instead of
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        telegram_id TEXT UNIQUE NOT NULL,
        username TEXT,
        first_name TEXT,
        last_name TEXT,
        phone_number TEXT,
        location TEXT,
        preferred_language TEXT NOT NULL DEFAULT 'en',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        telegram_id TEXT NOT NULL,
        session_state TEXT NOT NULL CHECK (session_state IN
            ('initial', 'awaiting_details', 'assessment_given', 'follow_up', 'completed')),
        context_json TEXT NOT NULL DEFAULT '{}',
        current_question INTEGER NOT NULL DEFAULT 0,
        symptoms_json TEXT NOT NULL DEFAULT '[]',
        started_at DATETIME NOT NULL,
        last_activity DATETIME NOT NULL,
        completed_at DATETIME,
        FOREIGN KEY (telegram_id) REFERENCES users (telegram_id)
    );

    -- At most one non-completed session per user. Concurrent creates race on
    -- this index and the loser re-reads the winner.
    CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
        ON sessions (telegram_id) WHERE session_state != 'completed';

    CREATE TABLE IF NOT EXISTS health_records (
        id TEXT PRIMARY KEY, -- UUID
        telegram_id TEXT NOT NULL,
        session_id TEXT,
        symptoms_json TEXT NOT NULL DEFAULT '[]',
        risk_level TEXT NOT NULL CHECK (risk_level IN ('low', 'moderate', 'high', 'critical')),
        severity_score REAL NOT NULL DEFAULT 0,
        location TEXT,
        reported_at DATETIME NOT NULL,
        assessment TEXT NOT NULL DEFAULT '',
        recommendations_json TEXT NOT NULL DEFAULT '[]',
        requires_followup BOOLEAN NOT NULL DEFAULT FALSE,
        followup_date DATETIME,
        followup_completed BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_health_records_reported_at
        ON health_records (reported_at);
    CREATE INDEX IF NOT EXISTS idx_health_records_followup_due
        ON health_records (followup_date) WHERE requires_followup AND NOT followup_completed;

    CREATE TABLE IF NOT EXISTS alerts (
        id TEXT PRIMARY KEY, -- UUID
        alert_type TEXT NOT NULL,
        severity TEXT NOT NULL,
        title TEXT NOT NULL,
        message TEXT NOT NULL,
        affected_location TEXT,
        affected_symptoms_json TEXT NOT NULL DEFAULT '[]',
        case_count INTEGER NOT NULL DEFAULT 0,
        anomaly_score REAL NOT NULL DEFAULT 0,
        sent_to_authorities BOOLEAN NOT NULL DEFAULT FALSE,
        is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL,
        resolved_at DATETIME
    );

    CREATE TABLE IF NOT EXISTS surveillance_logs (
        id TEXT PRIMARY KEY, -- UUID
        run_at DATETIME NOT NULL,
        window_start DATETIME NOT NULL,
        window_end DATETIME NOT NULL,
        total_reports INTEGER NOT NULL DEFAULT 0,
        symptom_counts_json TEXT NOT NULL DEFAULT '{}',
        location_counts_json TEXT NOT NULL DEFAULT '{}',
        anomalies_json TEXT NOT NULL DEFAULT '[]',
        alert_triggered BOOLEAN NOT NULL DEFAULT FALSE,
        alert_id TEXT
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// User methods

func (s *SQLiteStore) GetUserByTelegramID(telegramID string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		`SELECT id, telegram_id, username, first_name, last_name, phone_number,
                location, preferred_language, created_at, updated_at
         FROM users WHERE telegram_id = ?`, telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.LastName,
		&user.PhoneNumber, &user.Location, &user.PreferredLanguage, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// EnsureUser creates the user row if it does not exist yet and returns the
// stored row either way. Safe under concurrent calls for the same user: the
// insert is INSERT OR IGNORE on the telegram_id unique constraint.
func (s *SQLiteStore) EnsureUser(telegramID string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (id, telegram_id, preferred_language, created_at, updated_at)
         VALUES (?, ?, 'en', ?, ?)`,
		uuid.NewString(), telegramID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user, err := s.GetUserByTelegramID(telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s missing after ensure", telegramID)
	}
	return user, nil
}

// UpdateUserProfile backfills profile fields from the messaging channel. Nil
// fields are left untouched.
func (s *SQLiteStore) UpdateUserProfile(telegramID string, username, firstName, lastName *string) error {
	_, err := s.db.Exec(
		`UPDATE users SET
            username = COALESCE(?, username),
            first_name = COALESCE(?, first_name),
            last_name = COALESCE(?, last_name),
            updated_at = ?
         WHERE telegram_id = ?`,
		username, firstName, lastName, time.Now().UTC(), telegramID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetUserLanguage(telegramID, language string) error {
	_, err := s.db.Exec(
		"UPDATE users SET preferred_language = ?, updated_at = ? WHERE telegram_id = ?",
		language, time.Now().UTC(), telegramID,
	)
	if err != nil {
		return fmt.Errorf("failed to set user language: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUsersByLocation(location string) ([]User, error) {
	rows, err := s.db.Query(
		`SELECT id, telegram_id, username, first_name, last_name, phone_number,
                location, preferred_language, created_at, updated_at
         FROM users WHERE LOWER(location) = LOWER(?)`, location,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by location: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.TelegramID, &user.Username, &user.FirstName,
			&user.LastName, &user.PhoneNumber, &user.Location, &user.PreferredLanguage,
			&user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Session methods

func (s *SQLiteStore) GetActiveSession(telegramID string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, telegram_id, session_state, context_json, current_question,
                symptoms_json, started_at, last_activity, completed_at
         FROM sessions
         WHERE telegram_id = ? AND session_state != ?
         ORDER BY started_at DESC LIMIT 1`,
		telegramID, StateCompleted,
	)
	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No active session
		}
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return session, nil
}

// CreateSession inserts a fresh INITIAL session. Returns
// ErrActiveSessionExists when the partial unique index rejects the insert
// because the user already has a non-completed session.
func (s *SQLiteStore) CreateSession(telegramID string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:           uuid.NewString(),
		TelegramID:   telegramID,
		SessionState: StateInitial,
		StartedAt:    now,
		LastActivity: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, telegram_id, session_state, context_json,
            current_question, symptoms_json, started_at, last_activity)
         VALUES (?, ?, ?, '{}', 0, '[]', ?, ?)`,
		session.ID, telegramID, StateInitial, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

// UpdateSession persists the mutable session fields. The write is conditioned
// on the session not having completed underneath us.
func (s *SQLiteStore) UpdateSession(session *Session) error {
	contextJSON, err := json.Marshal(session.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}
	symptomsJSON, err := json.Marshal(emptyIfNil(session.SymptomsCollected))
	if err != nil {
		return fmt.Errorf("failed to marshal collected symptoms: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE sessions SET session_state = ?, context_json = ?, current_question = ?,
            symptoms_json = ?, last_activity = ?
         WHERE id = ? AND session_state != ?`,
		session.SessionState, string(contextJSON), session.CurrentQuestion,
		string(symptomsJSON), session.LastActivity, session.ID, StateCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session %s not found or already completed", session.ID)
	}
	return nil
}

func (s *SQLiteStore) TouchSession(sessionID string, at time.Time) error {
	_, err := s.db.Exec("UPDATE sessions SET last_activity = ? WHERE id = ?", at, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// CompleteSession marks a session COMPLETED and stamps completed_at. The
// returned bool reports whether this call performed the transition; false
// means the session was already completed, which callers treat as a no-op.
func (s *SQLiteStore) CompleteSession(sessionID string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE sessions SET session_state = ?, completed_at = ?, last_activity = ?
         WHERE id = ? AND session_state != ?`,
		StateCompleted, at, at, sessionID, StateCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) CountActiveSessions(telegramID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sessions WHERE telegram_id = ? AND session_state != ?",
		telegramID, StateCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var contextJSON, symptomsJSON string
	var completedAt sql.NullTime
	err := row.Scan(&session.ID, &session.TelegramID, &session.SessionState,
		&contextJSON, &session.CurrentQuestion, &symptomsJSON,
		&session.StartedAt, &session.LastActivity, &completedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contextJSON), &session.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	if err := json.Unmarshal([]byte(symptomsJSON), &session.SymptomsCollected); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collected symptoms: %w", err)
	}
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return &session, nil
}

// HealthRecord methods

func (s *SQLiteStore) InsertHealthRecord(record *HealthRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	symptomsJSON, err := json.Marshal(emptyIfNil(record.Symptoms))
	if err != nil {
		return fmt.Errorf("failed to marshal symptoms: %w", err)
	}
	recsJSON, err := json.Marshal(emptyIfNil(record.Recommendations))
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO health_records (id, telegram_id, session_id, symptoms_json,
            risk_level, severity_score, location, reported_at, assessment,
            recommendations_json, requires_followup, followup_date,
            followup_completed, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TelegramID, record.SessionID, string(symptomsJSON),
		record.RiskLevel, record.SeverityScore, record.Location, record.ReportedAt,
		record.Assessment, string(recsJSON), record.RequiresFollowup,
		record.FollowupDate, record.FollowupCompleted, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert health record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHealthRecordsInWindow(start, end time.Time) ([]HealthRecord, error) {
	rows, err := s.db.Query(
		healthRecordColumns+` WHERE reported_at > ? AND reported_at <= ? ORDER BY reported_at ASC`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query health records in window: %w", err)
	}
	return collectHealthRecords(rows)
}

func (s *SQLiteStore) GetHealthRecordsByUser(telegramID string, limit int) ([]HealthRecord, error) {
	rows, err := s.db.Query(
		healthRecordColumns+` WHERE telegram_id = ? ORDER BY reported_at DESC LIMIT ?`,
		telegramID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query health records for user: %w", err)
	}
	return collectHealthRecords(rows)
}

// GetDueFollowups returns records whose scheduled follow-up has passed and is
// still unacknowledged, oldest due first so the cap never starves a record.
func (s *SQLiteStore) GetDueFollowups(now time.Time, limit int) ([]HealthRecord, error) {
	rows, err := s.db.Query(
		healthRecordColumns+`
         WHERE requires_followup = TRUE AND followup_completed = FALSE AND followup_date <= ?
         ORDER BY followup_date ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due followups: %w", err)
	}
	return collectHealthRecords(rows)
}

// MarkFollowupCompleted flips followup_completed false->true. The write only
// succeeds if the flag was still false, giving compare-and-swap semantics
// against a concurrent sweep. Returns whether this call won the flip.
func (s *SQLiteStore) MarkFollowupCompleted(recordID string) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE health_records SET followup_completed = TRUE WHERE id = ? AND followup_completed = FALSE",
		recordID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark followup completed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

const healthRecordColumns = `SELECT id, telegram_id, session_id, symptoms_json,
    risk_level, severity_score, location, reported_at, assessment,
    recommendations_json, requires_followup, followup_date, followup_completed,
    created_at FROM health_records`

func collectHealthRecords(rows *sql.Rows) ([]HealthRecord, error) {
	defer rows.Close()

	var records []HealthRecord
	for rows.Next() {
		var record HealthRecord
		var symptomsJSON, recsJSON string
		var followupDate sql.NullTime
		if err := rows.Scan(&record.ID, &record.TelegramID, &record.SessionID,
			&symptomsJSON, &record.RiskLevel, &record.SeverityScore, &record.Location,
			&record.ReportedAt, &record.Assessment, &recsJSON, &record.RequiresFollowup,
			&followupDate, &record.FollowupCompleted, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health record row: %w", err)
		}
		if err := json.Unmarshal([]byte(symptomsJSON), &record.Symptoms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal symptoms: %w", err)
		}
		if err := json.Unmarshal([]byte(recsJSON), &record.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
		}
		if followupDate.Valid {
			record.FollowupDate = &followupDate.Time
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Alert methods

func (s *SQLiteStore) InsertAlert(alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	symptomsJSON, err := json.Marshal(emptyIfNil(alert.AffectedSymptoms))
	if err != nil {
		return fmt.Errorf("failed to marshal affected symptoms: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO alerts (id, alert_type, severity, title, message,
            affected_location, affected_symptoms_json, case_count, anomaly_score,
            sent_to_authorities, is_resolved, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.AlertType, alert.Severity, alert.Title, alert.Message,
		alert.AffectedLocation, string(symptomsJSON), alert.CaseCount,
		alert.AnomalyScore, alert.SentToAuthorities, alert.IsResolved, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkAlertSentToAuthorities(alertID string) error {
	_, err := s.db.Exec("UPDATE alerts SET sent_to_authorities = TRUE WHERE id = ?", alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent to authorities: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ResolveAlert(alertID string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE alerts SET is_resolved = TRUE, resolved_at = ? WHERE id = ? AND is_resolved = FALSE",
		at, alertID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) ListAlerts(limit int) ([]Alert, error) {
	rows, err := s.db.Query(
		alertColumns+` ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return collectAlerts(rows)
}

// GetUnresolvedAlerts returns open alerts created after since, newest first.
func (s *SQLiteStore) GetUnresolvedAlerts(since time.Time) ([]Alert, error) {
	rows, err := s.db.Query(
		alertColumns+` WHERE is_resolved = FALSE AND created_at > ? ORDER BY created_at DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved alerts: %w", err)
	}
	return collectAlerts(rows)
}

const alertColumns = `SELECT id, alert_type, severity, title, message,
    affected_location, affected_symptoms_json, case_count, anomaly_score,
    sent_to_authorities, is_resolved, created_at, resolved_at FROM alerts`

func collectAlerts(rows *sql.Rows) ([]Alert, error) {
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var alert Alert
		var symptomsJSON string
		var resolvedAt sql.NullTime
		if err := rows.Scan(&alert.ID, &alert.AlertType, &alert.Severity, &alert.Title,
			&alert.Message, &alert.AffectedLocation, &symptomsJSON, &alert.CaseCount,
			&alert.AnomalyScore, &alert.SentToAuthorities, &alert.IsResolved,
			&alert.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		if err := json.Unmarshal([]byte(symptomsJSON), &alert.AffectedSymptoms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal affected symptoms: %w", err)
		}
		if resolvedAt.Valid {
			alert.ResolvedAt = &resolvedAt.Time
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// SurveillanceLog methods

func (s *SQLiteStore) InsertSurveillanceLog(logEntry *SurveillanceLog) error {
	if logEntry.ID == "" {
		logEntry.ID = uuid.NewString()
	}
	symptomJSON, err := json.Marshal(emptyMapIfNil(logEntry.SymptomCounts))
	if err != nil {
		return fmt.Errorf("failed to marshal symptom counts: %w", err)
	}
	locationJSON, err := json.Marshal(emptyMapIfNil(logEntry.LocationCounts))
	if err != nil {
		return fmt.Errorf("failed to marshal location counts: %w", err)
	}
	anomaliesJSON, err := json.Marshal(emptyIfNil(logEntry.AnomaliesDetected))
	if err != nil {
		return fmt.Errorf("failed to marshal anomalies: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO surveillance_logs (id, run_at, window_start, window_end,
            total_reports, symptom_counts_json, location_counts_json,
            anomalies_json, alert_triggered, alert_id)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		logEntry.ID, logEntry.RunAt, logEntry.WindowStart, logEntry.WindowEnd,
		logEntry.TotalReports, string(symptomJSON), string(locationJSON),
		string(anomaliesJSON), logEntry.AlertTriggered, logEntry.AlertID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert surveillance log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSurveillanceLogs(limit int) ([]SurveillanceLog, error) {
	rows, err := s.db.Query(
		`SELECT id, run_at, window_start, window_end, total_reports,
            symptom_counts_json, location_counts_json, anomalies_json,
            alert_triggered, alert_id
         FROM surveillance_logs ORDER BY run_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveillance logs: %w", err)
	}
	defer rows.Close()

	var logs []SurveillanceLog
	for rows.Next() {
		var entry SurveillanceLog
		var symptomJSON, locationJSON, anomaliesJSON string
		if err := rows.Scan(&entry.ID, &entry.RunAt, &entry.WindowStart, &entry.WindowEnd,
			&entry.TotalReports, &symptomJSON, &locationJSON, &anomaliesJSON,
			&entry.AlertTriggered, &entry.AlertID); err != nil {
			return nil, fmt.Errorf("failed to scan surveillance log row: %w", err)
		}
		if err := json.Unmarshal([]byte(symptomJSON), &entry.SymptomCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal symptom counts: %w", err)
		}
		if err := json.Unmarshal([]byte(locationJSON), &entry.LocationCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location counts: %w", err)
		}
		if err := json.Unmarshal([]byte(anomaliesJSON), &entry.AnomaliesDetected); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomalies: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func emptyMapIfNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
