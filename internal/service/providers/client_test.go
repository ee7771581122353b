package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainerrors "github.com/complyco/entity-screening-backend/internal/domain/errors"
)

func experianAgainst(t *testing.T, srv *httptest.Server) *ExperianClient {
	t.Helper()
	return NewExperianClient(BureauConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		RateLimitRPS: 100,
	}, zaptest.NewLogger(t))
}

func TestBureauHTTP_NormalizesReport(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{
			"consumer": {
				"referenceId": "ref-1",
				"riskModel": {"score": 480},
				"alerts": [{"code": "FRAUD_ALERT", "text": "active fraud alert", "severity": 8}]
			}
		}`))
	}))
	defer srv.Close()

	report, err := experianAgainst(t, srv).GetReport(context.Background(), "cust-001", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "experian", report.Provider)
	assert.Equal(t, 480, report.CreditScore)
	require.Len(t, report.Indicators, 1)
	assert.Equal(t, "FRAUD_ALERT", report.Indicators[0].Code)
	assert.Equal(t, 80, report.Indicators[0].Score)
}

func TestBureauHTTP_RetriesOnceAfter429(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"consumer": {"riskModel": {"score": 700}}}`))
	}))
	defer srv.Close()

	report, err := experianAgainst(t, srv).GetReport(context.Background(), "cust-001", nil)
	require.NoError(t, err)
	assert.Equal(t, 700, report.CreditScore)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestBureauHTTP_PersistentRateLimitIsAnError(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := experianAgainst(t, srv).GetReport(context.Background(), "cust-001", nil)
	require.Error(t, err)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", domainerrors.Code(err))
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "exactly one retry after 429")
}

func TestBureauHTTP_LongRetryAfterIsNotHonored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := experianAgainst(t, srv).GetReport(context.Background(), "cust-001", nil)
	require.Error(t, err)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", domainerrors.Code(err))
}

func TestBureauHTTP_ServerErrorIsRetryableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := experianAgainst(t, srv).GetReport(context.Background(), "cust-001", nil)
	require.Error(t, err)
	assert.Equal(t, "UPSTREAM_ERROR", domainerrors.Code(err))
	assert.True(t, domainerrors.IsRetryable(err))
}

func TestBureauHTTP_MalformedBodyIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := experianAgainst(t, srv).GetReport(context.Background(), "cust-001", nil)
	require.Error(t, err)
	assert.Equal(t, "UPSTREAM_ERROR", domainerrors.Code(err))
}

func TestWebhookParsing(t *testing.T) {
	c := NewEquifaxClient(BureauConfig{BaseURL: "http://localhost"}, zaptest.NewLogger(t))

	assert.NoError(t, c.HandleWebhook(context.Background(), []byte(`{"event":"report.ready"}`)))

	err := c.HandleWebhook(context.Background(), []byte(`{{`))
	require.Error(t, err)
	assert.Equal(t, "MALFORMED_WEBHOOK", domainerrors.Code(err))
}
