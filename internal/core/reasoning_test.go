package core

import (
	"testing"

	"swasthai.dev/health-sentinel/internal/store"
)

func TestParseAssessment(t *testing.T) {
	raw := `{"risk_level": "HIGH", "severity_score": 7.5, "symptoms": ["fever", "cough"],
		"recommendations": ["See a doctor within 24 hours"], "reply_text": "Your risk is high."}`

	assessment, err := parseAssessment(raw)
	if err != nil {
		t.Fatalf("parseAssessment failed: %v", err)
	}
	if assessment.RiskLevel != store.RiskHigh {
		t.Errorf("expected risk level to be lowercased to high, got %s", assessment.RiskLevel)
	}
	if assessment.SeverityScore != 7.5 {
		t.Errorf("unexpected severity %v", assessment.SeverityScore)
	}
	if len(assessment.Symptoms) != 2 {
		t.Errorf("unexpected symptoms %v", assessment.Symptoms)
	}
}

func TestParseAssessment_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"risk_level\": \"low\", \"severity_score\": 1, \"symptoms\": [], " +
		"\"recommendations\": [], \"reply_text\": \"Rest up.\"}\n```"

	assessment, err := parseAssessment(raw)
	if err != nil {
		t.Fatalf("parseAssessment failed: %v", err)
	}
	if assessment.ReplyText != "Rest up." {
		t.Errorf("unexpected reply %q", assessment.ReplyText)
	}
}

func TestParseAssessment_ClampsAndDefaults(t *testing.T) {
	raw := `{"risk_level": "catastrophic", "severity_score": 42, "reply_text": "ok"}`

	assessment, err := parseAssessment(raw)
	if err != nil {
		t.Fatalf("parseAssessment failed: %v", err)
	}
	if assessment.RiskLevel != store.RiskModerate {
		t.Errorf("unknown risk level must default to moderate, got %s", assessment.RiskLevel)
	}
	if assessment.SeverityScore != 10 {
		t.Errorf("severity must clamp to 10, got %v", assessment.SeverityScore)
	}
}

func TestParseAssessment_RejectsMissingReply(t *testing.T) {
	raw := `{"risk_level": "low", "severity_score": 1}`
	if _, err := parseAssessment(raw); err == nil {
		t.Fatal("expected an error for an assessment without reply text")
	}
}

func TestParseAssessment_RejectsNonJSON(t *testing.T) {
	if _, err := parseAssessment("I cannot answer that."); err == nil {
		t.Fatal("expected an error for a non-JSON response")
	}
}
