package providers

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	"github.com/complyco/entity-screening-backend/internal/metrics"
)

// Manager owns the bureau adapters and the circuit breaker in front of
// each one. Every external call goes through the named provider's
// breaker; no caller touches breaker state directly.
type Manager struct {
	logger  *zap.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer

	breakerCfg BreakerConfig

	mu       sync.RWMutex
	clients  map[string]BureauClient
	breakers map[string]*Breaker
}

// NewManager creates an empty provider manager
func NewManager(breakerCfg BreakerConfig, logger *zap.Logger, m *metrics.Registry) *Manager {
	return &Manager{
		logger:     logger.Named("providers"),
		metrics:    m,
		tracer:     otel.Tracer("providers"),
		breakerCfg: breakerCfg,
		clients:    make(map[string]BureauClient),
		breakers:   make(map[string]*Breaker),
	}
}

// Register adds a bureau client with its own dedicated breaker
func (m *Manager) Register(client BureauClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := client.Name()
	if _, exists := m.clients[name]; exists {
		return errors.NewConflictError("provider already registered: " + name)
	}

	m.clients[name] = client
	m.breakers[name] = NewBreaker(name, m.breakerCfg, WithStateChangeCallback(m.onBreakerTransition))
	m.metrics.BreakerState.WithLabelValues(name).Set(float64(CircuitClosed))
	return nil
}

// Providers lists registered provider names
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// BreakerStates reports the circuit state per provider
func (m *Manager) BreakerStates() map[string]CircuitState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make(map[string]CircuitState, len(m.breakers))
	for name, b := range m.breakers {
		states[name] = b.State()
	}
	return states
}

// GetReport fetches one provider's report through its breaker
func (m *Manager) GetReport(ctx context.Context, provider, entityID string) (*NormalizedReport, error) {
	m.mu.RLock()
	client, ok := m.clients[provider]
	breaker := m.breakers[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.ErrProviderNotFound
	}

	ctx, span := m.tracer.Start(ctx, "providers.GetReport",
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("entity.id", entityID),
		))
	defer span.End()

	start := time.Now()
	var report *NormalizedReport
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		report, callErr = client.GetReport(ctx, entityID, nil)
		return callErr
	})

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
	}
	m.metrics.ProviderCallDuration.WithLabelValues(provider, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return report, nil
}

// GetAllReports fans out to every registered bureau concurrently. A
// failing bureau never prevents the others from returning: its branch is
// logged, counted, and excluded from the returned map.
func (m *Manager) GetAllReports(ctx context.Context, entityID string) map[string]*NormalizedReport {
	m.mu.RLock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports = make(map[string]*NormalizedReport, len(names))
	)

	for _, name := range names {
		wg.Add(1)
		go func(provider string) {
			defer wg.Done()

			report, err := m.GetReport(ctx, provider, entityID)
			if err != nil {
				m.metrics.BranchFailures.WithLabelValues(provider, errors.Code(err)).Inc()
				m.logger.Warn("bureau branch failed",
					zap.String("provider", provider),
					zap.String("entity_id", entityID),
					zap.String("reason", errors.Code(err)),
					zap.Error(err))
				return
			}

			mu.Lock()
			reports[provider] = report
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	return reports
}

// HandleWebhook routes a provider-originated payload to its adapter
func (m *Manager) HandleWebhook(ctx context.Context, providerID string, payload []byte) error {
	m.mu.RLock()
	client, ok := m.clients[providerID]
	m.mu.RUnlock()
	if !ok {
		return errors.ErrProviderNotFound
	}
	return client.HandleWebhook(ctx, payload)
}

// ResetBreaker force-closes one provider's breaker (operator action)
func (m *Manager) ResetBreaker(provider string) error {
	m.mu.RLock()
	breaker, ok := m.breakers[provider]
	m.mu.RUnlock()
	if !ok {
		return errors.ErrProviderNotFound
	}
	breaker.Reset()
	return nil
}

func (m *Manager) onBreakerTransition(name string, from, to CircuitState) {
	m.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	m.metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
	m.logger.Warn("circuit state changed",
		zap.String("provider", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}
