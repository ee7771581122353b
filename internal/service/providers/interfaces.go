package providers

import (
	"context"
	"encoding/json"
	"time"
)

// RiskIndicator is one adverse signal extracted from a bureau report,
// normalized to a 0-100 severity score.
type RiskIndicator struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// NormalizedReport is the canonical shape every bureau adapter produces,
// regardless of the source's wire format.
type NormalizedReport struct {
	Provider    string          `json:"provider"`
	EntityID    string          `json:"entity_id"`
	CreditScore int             `json:"credit_score"`
	Indicators  []RiskIndicator `json:"indicators,omitempty"`
	RetrievedAt time.Time       `json:"retrieved_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// BureauClient adapts one external risk-data source to the canonical
// request/response model. Implementations surface transient conditions
// (rate limiting, auth refresh) as retryable errors, never as permanent
// failures.
type BureauClient interface {
	Name() string
	GetReport(ctx context.Context, entityID string, extra map[string]string) (*NormalizedReport, error)

	// HandleWebhook processes a provider-originated notification. The
	// payload shape is provider-specific and opaque to callers.
	HandleWebhook(ctx context.Context, payload []byte) error
}

// BureauConfig is the static per-provider configuration: base URLs,
// credential, and the sandbox/production switch.
type BureauConfig struct {
	BaseURL      string `koanf:"base_url"`
	SandboxURL   string `koanf:"sandbox_url"`
	APIKey       string `koanf:"api_key"`
	Sandbox      bool   `koanf:"sandbox"`
	RateLimitRPS int    `koanf:"rate_limit_rps"`
}

// Endpoint selects the sandbox or production base URL
func (c BureauConfig) Endpoint() string {
	if c.Sandbox && c.SandboxURL != "" {
		return c.SandboxURL
	}
	return c.BaseURL
}
