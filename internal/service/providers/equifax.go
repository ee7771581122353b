package providers

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

// EquifaxClient adapts the Equifax risk report API
type EquifaxClient struct {
	http   *bureauHTTP
	logger *zap.Logger
}

// equifaxReport is Equifax's wire shape: a flat score plus string flags
type equifaxReport struct {
	SubjectID  string         `json:"subject_id"`
	Score      int            `json:"score"`
	Flags      []string       `json:"flags"`
	FlagScores map[string]int `json:"flag_scores"`
}

type equifaxWebhook struct {
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id"`
}

func NewEquifaxClient(cfg BureauConfig, logger *zap.Logger) *EquifaxClient {
	return &EquifaxClient{
		http:   newBureauHTTP("equifax", cfg),
		logger: logger.Named("equifax"),
	}
}

func (c *EquifaxClient) Name() string { return "equifax" }

func (c *EquifaxClient) GetReport(ctx context.Context, entityID string, extra map[string]string) (*NormalizedReport, error) {
	var wire equifaxReport
	path := "/risk/v1/reports?subject=" + url.QueryEscape(entityID)
	if err := c.http.getJSON(ctx, path, &wire); err != nil {
		return nil, err
	}

	report := &NormalizedReport{
		Provider:    c.Name(),
		EntityID:    entityID,
		CreditScore: wire.Score,
		RetrievedAt: time.Now().UTC(),
	}
	for _, flag := range wire.Flags {
		score := 50
		if s, ok := wire.FlagScores[flag]; ok {
			score = s
		}
		report.Indicators = append(report.Indicators, RiskIndicator{
			Code:  flag,
			Score: score,
		})
	}
	return report, nil
}

func (c *EquifaxClient) HandleWebhook(ctx context.Context, payload []byte) error {
	var event equifaxWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.NewValidationError("MALFORMED_WEBHOOK", "equifax webhook payload is not valid JSON").WithCause(err)
	}
	c.logger.Info("webhook received",
		zap.String("kind", event.Kind),
		zap.String("subject_id", event.SubjectID))
	return nil
}
