package providers

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

// ExperianClient adapts the Experian consumer risk API
type ExperianClient struct {
	http   *bureauHTTP
	logger *zap.Logger
}

// experianReport is Experian's wire shape
type experianReport struct {
	Consumer struct {
		ReferenceID string `json:"referenceId"`
		RiskModel   struct {
			Score int `json:"score"` // 300-850 scale
		} `json:"riskModel"`
		Alerts []struct {
			Code     string `json:"code"`
			Text     string `json:"text"`
			Severity int    `json:"severity"` // 1-10
		} `json:"alerts"`
	} `json:"consumer"`
}

type experianWebhook struct {
	EventType   string `json:"eventType"`
	ReferenceID string `json:"referenceId"`
}

func NewExperianClient(cfg BureauConfig, logger *zap.Logger) *ExperianClient {
	return &ExperianClient{
		http:   newBureauHTTP("experian", cfg),
		logger: logger.Named("experian"),
	}
}

func (c *ExperianClient) Name() string { return "experian" }

func (c *ExperianClient) GetReport(ctx context.Context, entityID string, extra map[string]string) (*NormalizedReport, error) {
	var wire experianReport
	path := "/v2/credit-report/" + url.PathEscape(entityID)
	if err := c.http.getJSON(ctx, path, &wire); err != nil {
		return nil, err
	}

	report := &NormalizedReport{
		Provider:    c.Name(),
		EntityID:    entityID,
		CreditScore: wire.Consumer.RiskModel.Score,
		RetrievedAt: time.Now().UTC(),
	}
	for _, alert := range wire.Consumer.Alerts {
		report.Indicators = append(report.Indicators, RiskIndicator{
			Code:        alert.Code,
			Description: alert.Text,
			Score:       alert.Severity * 10, // 1-10 severity to 0-100
		})
	}
	return report, nil
}

func (c *ExperianClient) HandleWebhook(ctx context.Context, payload []byte) error {
	var event experianWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.NewValidationError("MALFORMED_WEBHOOK", "experian webhook payload is not valid JSON").WithCause(err)
	}
	c.logger.Info("webhook received",
		zap.String("event_type", event.EventType),
		zap.String("reference_id", event.ReferenceID))
	return nil
}
