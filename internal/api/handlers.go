package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"swasthai.dev/health-sentinel/internal/auth"
	"swasthai.dev/health-sentinel/internal/config"
	"swasthai.dev/health-sentinel/internal/core"
	"swasthai.dev/health-sentinel/internal/store"
)

// OpsStore is the slice of the store the operator endpoints read and write.
type OpsStore interface {
	ListAlerts(limit int) ([]store.Alert, error)
	ResolveAlert(alertID string, at time.Time) (bool, error)
	ListSurveillanceLogs(limit int) ([]store.SurveillanceLog, error)
}

type APIHandler struct {
	triage       *core.TriageService
	surveillance *core.SurveillanceEngine
	dbStore      OpsStore
}

func NewAPIHandler(triage *core.TriageService, surveillance *core.SurveillanceEngine, db OpsStore) *APIHandler {
	return &APIHandler{
		triage:       triage,
		surveillance: surveillance,
		dbStore:      db,
	}
}

// TelegramWebhookHandler is the inbound message intake. Telegram retries on
// non-2xx responses, so handler-side failures are logged and acknowledged to
// avoid redelivery storms.
func (h *APIHandler) TelegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid update body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	msg := update.Message
	telegramID := strconv.FormatInt(msg.From.ID, 10)
	profile := core.Profile{
		Username:  optional(msg.From.UserName),
		FirstName: optional(msg.From.FirstName),
		LastName:  optional(msg.From.LastName),
	}

	if err := h.routeMessage(r.Context(), telegramID, profile, msg); err != nil {
		log.Printf("webhook: failed to handle message from %s: %v", telegramID, err)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *APIHandler) routeMessage(ctx context.Context, telegramID string, profile core.Profile, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			return h.triage.HandleStart(ctx, telegramID, profile)
		case "help":
			return h.triage.HandleHelp(ctx, telegramID)
		case "status":
			return h.triage.HandleStatus(ctx, telegramID)
		case "language":
			return h.triage.HandleLanguage(ctx, telegramID, msg.CommandArguments())
		default:
			return h.triage.HandleHelp(ctx, telegramID)
		}
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	return h.triage.HandleMessage(ctx, telegramID, profile, text)
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		operatorID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), operatorIDKey, operatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const operatorIDKey contextKey = "operatorID"

type LoginRequest struct {
	OperatorID string `json:"operator_id"`
	Password   string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.OperatorID == "" || req.Password == "" {
		http.Error(w, "Operator ID and password are required", http.StatusBadRequest)
		return
	}

	hash := config.AppConfig.OperatorPassHash
	if hash == "" || !auth.CheckPassword(hash, req.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.OperatorID)
	if err != nil {
		log.Printf("Error generating JWT for operator %s: %v", req.OperatorID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *APIHandler) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	alerts, err := h.dbStore.ListAlerts(limit)
	if err != nil {
		log.Printf("Error listing alerts: %v", err)
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	json.NewEncoder(w).Encode(alerts)
}

func (h *APIHandler) ResolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	resolved, err := h.dbStore.ResolveAlert(alertID, time.Now().UTC())
	if err != nil {
		log.Printf("Error resolving alert %s: %v", alertID, err)
		http.Error(w, "Failed to resolve alert", http.StatusInternalServerError)
		return
	}
	if !resolved {
		http.Error(w, "Alert not found or already resolved", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListSurveillanceLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	logs, err := h.dbStore.ListSurveillanceLogs(limit)
	if err != nil {
		log.Printf("Error listing surveillance logs: %v", err)
		http.Error(w, "Failed to list surveillance logs", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []store.SurveillanceLog{}
	}
	json.NewEncoder(w).Encode(logs)
}

// RunSurveillanceHandler triggers an out-of-schedule surveillance pass, for
// operators investigating a suspected spike before the next tick.
func (h *APIHandler) RunSurveillanceHandler(w http.ResponseWriter, r *http.Request) {
	logEntry, err := h.surveillance.RunSurveillance(r.Context(), config.AppConfig.SpikeWindowHours)
	if err != nil {
		log.Printf("Error running manual surveillance: %v", err)
		http.Error(w, "Surveillance run failed", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(logEntry)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	return limit
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
