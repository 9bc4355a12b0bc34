package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"swasthai.dev/health-sentinel/internal/core"
)

const authorityTimeout = 5 * time.Second

// AuthorityClient posts alert escalations as JSON to the public health
// authority endpoint. With no endpoint configured it logs and reports
// success, which keeps local and test deployments working without a
// receiving side.
type AuthorityClient struct {
	endpoint string
	client   *http.Client
}

func NewAuthorityClient(endpoint string) *AuthorityClient {
	return &AuthorityClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: authorityTimeout},
	}
}

func (c *AuthorityClient) Submit(ctx context.Context, payload core.AuthorityPayload) error {
	if c.endpoint == "" {
		log.Printf("notify: no authority endpoint configured, alert %s logged only", payload.AlertID)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal authority payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build authority request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("authority request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("authority endpoint returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
