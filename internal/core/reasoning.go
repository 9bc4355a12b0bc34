package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"swasthai.dev/health-sentinel/internal/config"
	"swasthai.dev/health-sentinel/internal/store"
)

// Assessment is the structured result of one reasoning-engine evaluation. The
// core persists the structured fields into a HealthRecord and forwards
// ReplyText to the notifier; it never inspects how they were produced.
type Assessment struct {
	RiskLevel       string   `json:"risk_level"`
	SeverityScore   float64  `json:"severity_score"`
	Symptoms        []string `json:"symptoms"`
	Recommendations []string `json:"recommendations"`
	ReplyText       string   `json:"reply_text"`
}

// ReasoningEngine evaluates an inbound message against the conversation so
// far. The core is fully testable with a fake implementation.
type ReasoningEngine interface {
	Evaluate(ctx context.Context, message string, sessCtx store.SessionContext, history []string) (*Assessment, error)
}

const (
	defaultTriageModelName = "gemini-1.5-flash-latest"

	triageSystemInstruction = "You are a healthcare triage specialist assessing symptoms reported over a messaging channel. " +
		"Extract every symptom from the message and history, assess the overall risk, and write a short reply for the user. " +
		"Respond with a single JSON object and nothing else, using exactly these keys: " +
		`{"risk_level": "low|moderate|high|critical", "severity_score": 0.0, "symptoms": [], "recommendations": [], "reply_text": ""}. ` +
		"severity_score is a number from 0 to 10. Recommendations are short imperative sentences. " +
		"The reply_text must restate the risk level, the symptoms you identified, and the recommendations in plain language. " +
		"Never invent symptoms the user did not mention."
)

// GeminiEngine is the production ReasoningEngine backed by Gemini.
type GeminiEngine struct {
	client *genai.Client
}

func NewGeminiEngine() *GeminiEngine {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}
	return &GeminiEngine{client: client}
}

func (e *GeminiEngine) Close() {
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (e *GeminiEngine) Evaluate(ctx context.Context, message string, sessCtx store.SessionContext, history []string) (*Assessment, error) {
	model := e.client.GenerativeModel(defaultTriageModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(triageSystemInstruction)},
	}
	model.ResponseMIMEType = "application/json"

	temp := float32(0.3)
	model.GenerationConfig.Temperature = &temp

	resp, err := model.GenerateContent(ctx, genai.Text(buildTriagePrompt(message, sessCtx, history)))
	if err != nil {
		return nil, fmt.Errorf("gemini triage request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned an empty triage response")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			raw.WriteString(string(txt))
		}
	}

	assessment, err := parseAssessment(raw.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse triage response: %w", err)
	}
	return assessment, nil
}

func buildTriagePrompt(message string, sessCtx store.SessionContext, history []string) string {
	var b strings.Builder
	if sessCtx.InitialSymptom != "" {
		fmt.Fprintf(&b, "Initial complaint: %s\n", sessCtx.InitialSymptom)
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, line := range history {
			fmt.Fprintf(&b, "%s\n", line)
		}
	}
	fmt.Fprintf(&b, "Latest message: %s\n", message)
	return b.String()
}

// parseAssessment unmarshals the model's JSON and clamps it into the value
// ranges the rest of the system relies on.
func parseAssessment(raw string) (*Assessment, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in a markdown fence despite instructions.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var assessment Assessment
	if err := json.Unmarshal([]byte(raw), &assessment); err != nil {
		return nil, err
	}

	switch strings.ToLower(assessment.RiskLevel) {
	case store.RiskLow, store.RiskModerate, store.RiskHigh, store.RiskCritical:
		assessment.RiskLevel = strings.ToLower(assessment.RiskLevel)
	default:
		log.Printf("reasoning: unrecognized risk level %q, defaulting to moderate", assessment.RiskLevel)
		assessment.RiskLevel = store.RiskModerate
	}

	if assessment.SeverityScore < 0 {
		assessment.SeverityScore = 0
	}
	if assessment.SeverityScore > 10 {
		assessment.SeverityScore = 10
	}
	if assessment.ReplyText == "" {
		return nil, fmt.Errorf("assessment has no reply text")
	}
	return &assessment, nil
}
