package auth

import (
	"testing"

	"swasthai.dev/health-sentinel/internal/config"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("operator-pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPassword(hash, "operator-pass") {
		t.Error("expected the correct password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected a wrong password to fail")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	token, err := GenerateJWT("ops-1")
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}
	operatorID, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT failed: %v", err)
	}
	if operatorID != "ops-1" {
		t.Errorf("expected subject ops-1, got %s", operatorID)
	}
}

func TestValidateJWT_RejectsTamperedToken(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"
	token, err := GenerateJWT("ops-1")
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	config.AppConfig.JWTSecret = "different-secret"
	if _, err := ValidateJWT(token); err == nil {
		t.Error("expected validation to fail under a different secret")
	}
}
