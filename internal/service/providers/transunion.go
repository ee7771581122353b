package providers

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

// TransUnionClient adapts the TransUnion credit profile API
type TransUnionClient struct {
	http   *bureauHTTP
	logger *zap.Logger
}

// transunionReport nests everything under creditProfile
type transunionReport struct {
	CreditProfile struct {
		Subject string `json:"subject"`
		Scoring struct {
			Value int `json:"value"`
		} `json:"scoring"`
		Derogatories []struct {
			Type     string `json:"type"`
			Detail   string `json:"detail"`
			Weight   int    `json:"weight"` // already 0-100
		} `json:"derogatories"`
	} `json:"creditProfile"`
}

type transunionWebhook struct {
	Notification string `json:"notification"`
	Subject      string `json:"subject"`
}

func NewTransUnionClient(cfg BureauConfig, logger *zap.Logger) *TransUnionClient {
	return &TransUnionClient{
		http:   newBureauHTTP("transunion", cfg),
		logger: logger.Named("transunion"),
	}
}

func (c *TransUnionClient) Name() string { return "transunion" }

func (c *TransUnionClient) GetReport(ctx context.Context, entityID string, extra map[string]string) (*NormalizedReport, error) {
	var wire transunionReport
	path := "/v1/credit-profiles/" + url.PathEscape(entityID)
	if err := c.http.getJSON(ctx, path, &wire); err != nil {
		return nil, err
	}

	report := &NormalizedReport{
		Provider:    c.Name(),
		EntityID:    entityID,
		CreditScore: wire.CreditProfile.Scoring.Value,
		RetrievedAt: time.Now().UTC(),
	}
	for _, d := range wire.CreditProfile.Derogatories {
		report.Indicators = append(report.Indicators, RiskIndicator{
			Code:        d.Type,
			Description: d.Detail,
			Score:       d.Weight,
		})
	}
	return report, nil
}

func (c *TransUnionClient) HandleWebhook(ctx context.Context, payload []byte) error {
	var event transunionWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.NewValidationError("MALFORMED_WEBHOOK", "transunion webhook payload is not valid JSON").WithCause(err)
	}
	c.logger.Info("webhook received",
		zap.String("notification", event.Notification),
		zap.String("subject", event.Subject))
	return nil
}
