package screening

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	domain "github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
	"github.com/complyco/entity-screening-backend/internal/metrics"
)

// Config tunes the orchestrator
type Config struct {
	MatchThreshold int           // minimum 0-100 similarity kept as a candidate
	JobTimeout     time.Duration // wall-clock budget for one job
	DedupeWindow   time.Duration // window in which identical requests collapse
	PendingTTL     time.Duration // how long an unfinished job answers "pending"
}

func (c Config) withDefaults() Config {
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = 75
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 60 * time.Second
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = time.Hour
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 24 * time.Hour
	}
	return c
}

// Service orchestrates one screening end to end: intake and dedupe on
// the submit side, then watchlist matching, bureau aggregation, scoring
// and persistence on the worker side.
type Service struct {
	cfg        Config
	watchlists watchlist.Store
	results    domain.ResultStore
	matcher    Matcher
	scorer     Scorer
	bureaus    BureauGateway
	queue      JobQueue
	dedupe     Deduper
	tracker    JobTracker

	validate *validator.Validate
	logger   *zap.Logger
	metrics  *metrics.Registry
	tracer   trace.Tracer
}

func NewService(
	cfg Config,
	watchlists watchlist.Store,
	results domain.ResultStore,
	matcher Matcher,
	scorer Scorer,
	bureaus BureauGateway,
	queue JobQueue,
	dedupe Deduper,
	tracker JobTracker,
	logger *zap.Logger,
	m *metrics.Registry,
) *Service {
	return &Service{
		cfg:        cfg.withDefaults(),
		watchlists: watchlists,
		results:    results,
		matcher:    matcher,
		scorer:     scorer,
		bureaus:    bureaus,
		queue:      queue,
		dedupe:     dedupe,
		tracker:    tracker,
		validate:   validator.New(),
		logger:     logger.Named("screening"),
		metrics:    m,
		tracer:     otel.Tracer("screening"),
	}
}

// Screen validates and enqueues a screening request. Identical requests
// inside the dedupe window collapse onto the first job: the caller gets
// the original job ID, which is also the result ID once the job runs.
func (s *Service) Screen(ctx context.Context, req domain.ScreeningRequest) (*domain.ScreeningJob, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "invalid screening request").WithCause(err)
	}

	job, err := domain.NewJob(req)
	if err != nil {
		return nil, err
	}

	fingerprint := req.Fingerprint()
	holder, reserved, err := s.dedupe.ReserveFingerprint(ctx, fingerprint, job.JobID.String(), s.cfg.DedupeWindow)
	if err != nil {
		// Dedupe is best effort; a broken cache must not stop intake.
		s.logger.Warn("dedupe unavailable, accepting request", zap.Error(err))
	} else if !reserved {
		existingID, parseErr := uuid.Parse(holder)
		if parseErr == nil {
			s.logger.Info("duplicate screening collapsed",
				zap.String("entity_id", req.EntityID),
				zap.String("job_id", existingID.String()))
			job.JobID = existingID
			job.Status = domain.JobStatusPending
			return job, nil
		}
		s.logger.Warn("unreadable dedupe holder, accepting request", zap.String("holder", holder))
	}

	// Mark before enqueue so a fast worker cannot clear the marker
	// first. The marker lets retrieval answer "pending" until the
	// result lands.
	if err := s.tracker.MarkPending(ctx, job.JobID, s.cfg.PendingTTL); err != nil {
		s.logger.Warn("pending marker write failed", zap.Error(err))
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.tracker.ClearPending(ctx, job.JobID)
		if reserved {
			s.dedupe.ReleaseFingerprint(ctx, fingerprint)
		}
		return nil, err
	}

	s.logger.Info("screening enqueued",
		zap.String("job_id", job.JobID.String()),
		zap.String("entity_id", req.EntityID),
		zap.String("entity_type", string(req.EntityType)))
	return job, nil
}

// ProcessJob runs one job to completion. Safe to call again for the
// same job: the result write is an upsert keyed by the job ID.
func (s *Service) ProcessJob(ctx context.Context, job *domain.ScreeningJob) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "screening.ProcessJob",
		trace.WithAttributes(
			attribute.String("job.id", job.JobID.String()),
			attribute.String("entity.id", job.Request.EntityID),
			attribute.Int("job.attempt", job.Attempt),
		))
	defer span.End()

	start := time.Now()
	job.Status = domain.JobStatusProcessing

	lists, err := s.watchlists.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "load watchlists")
	}

	candidates := s.collectWatchlistCandidates(ctx, job.Request, lists)
	candidates = append(candidates, s.collectBureauCandidates(ctx, job.Request.EntityID)...)

	score := s.scorer.CalculateRiskScore(candidates)
	status := s.scorer.DetermineStatus(score, candidates)

	matches := make([]domain.ScreeningMatch, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, domain.ScreeningMatch{
			ID:            uuid.New(),
			WatchlistID:   c.WatchlistID,
			WatchlistType: c.WatchlistType,
			MatchedField:  c.MatchedField,
			MatchScore:    c.Score,
			MatchDetails:  c,
			RiskLevel:     s.scorer.DetermineRiskLevel(c.Score),
		})
	}

	result := domain.NewResult(job, score, status, matches)
	if err := s.results.SaveResult(ctx, result); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "persist result")
	}

	job.Status = domain.JobStatusSucceeded
	s.tracker.ClearPending(ctx, job.JobID)
	s.metrics.ScreeningsTotal.WithLabelValues(string(status)).Inc()
	s.metrics.ScreeningDuration.Observe(time.Since(start).Seconds())
	s.metrics.MatchCandidates.Observe(float64(len(candidates)))

	s.logger.Info("screening completed",
		zap.String("job_id", job.JobID.String()),
		zap.String("entity_id", job.Request.EntityID),
		zap.String("status", string(status)),
		zap.Int("risk_score", score),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// collectWatchlistCandidates fans out over the active watchlists
// concurrently. Every screening data field is matched against every
// list; identifier fields use exact comparison.
func (s *Service) collectWatchlistCandidates(ctx context.Context, req domain.ScreeningRequest, lists []*watchlist.Watchlist) []domain.MatchCandidate {
	type branch struct {
		candidates []domain.MatchCandidate
	}

	results := make(chan branch, len(lists))
	for _, wl := range lists {
		go func(wl *watchlist.Watchlist) {
			var out []domain.MatchCandidate
			for field, value := range req.ScreeningData {
				var found []domain.MatchCandidate
				if domain.IdentifierFields[field] {
					found = s.matcher.MatchIdentifier(field, value, wl.Entries)
				} else {
					found = s.matcher.FindMatches(value, wl.Entries, s.cfg.MatchThreshold)
				}
				for i := range found {
					found[i].MatchedField = field
					found[i].WatchlistID = wl.ID
					found[i].WatchlistType = string(wl.Type)
				}
				out = append(out, found...)
			}
			results <- branch{candidates: out}
		}(wl)
	}

	var candidates []domain.MatchCandidate
	for range lists {
		select {
		case b := <-results:
			candidates = append(candidates, b.candidates...)
		case <-ctx.Done():
			// Partial candidates are worse than none for a compliance
			// verdict; the job retries instead.
			return candidates
		}
	}
	return candidates
}

// collectBureauCandidates folds bureau risk indicators into the
// candidate set as custom-list matches. Bureau outages reduce the set
// instead of failing the job.
func (s *Service) collectBureauCandidates(ctx context.Context, entityID string) []domain.MatchCandidate {
	reports := s.bureaus.GetAllReports(ctx, entityID)

	var candidates []domain.MatchCandidate
	for provider, report := range reports {
		listID := bureauListID(provider)
		for _, ind := range report.Indicators {
			score := ind.Score
			if score < 0 {
				score = 0
			}
			if score > 100 {
				score = 100
			}
			if score == 0 {
				continue
			}
			candidates = append(candidates, domain.MatchCandidate{
				Score:         score,
				MatchedField:  "bureau:" + provider,
				MatchedName:   ind.Description,
				WatchlistID:   listID,
				WatchlistType: string(watchlist.TypeCustom),
				EntryRef:      ind.Code,
			})
		}
	}
	return candidates
}

// bureauListID derives a stable pseudo-watchlist ID per provider so
// bureau matches stay distinguishable in persisted results
func bureauListID(provider string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("bureau:"+provider))
}

func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*domain.ScreeningResult, error) {
	result, err := s.results.FindResult(ctx, id)
	if err == nil {
		return result, nil
	}
	if stderrors.Is(err, errors.ErrResultNotFound) {
		pending, trackErr := s.tracker.IsPending(ctx, id)
		if trackErr != nil {
			s.logger.Warn("pending marker lookup failed", zap.Error(trackErr))
		}
		if pending {
			return nil, errors.ErrResultPending
		}
	}
	return nil, err
}

// GetHistory returns the entity's screenings, newest first
func (s *Service) GetHistory(ctx context.Context, entityID string) ([]*domain.ScreeningResult, error) {
	if entityID == "" {
		return nil, errors.NewValidationError("MISSING_ENTITY_ID", "entity id is required")
	}
	return s.results.ListByEntity(ctx, entityID)
}

// ReviewFalsePositive annotates a result after human review. The
// original score and matches survive for audit.
func (s *Service) ReviewFalsePositive(ctx context.Context, id uuid.UUID, reviewedBy, notes string) (*domain.ScreeningResult, error) {
	if reviewedBy == "" {
		return nil, errors.NewValidationError("MISSING_REVIEWER", "reviewer identity is required")
	}
	result, err := s.results.UpdateReview(ctx, id, reviewedBy, notes)
	if err != nil {
		return nil, err
	}
	s.logger.Info("result marked false positive",
		zap.String("result_id", id.String()),
		zap.String("reviewed_by", reviewedBy))
	return result, nil
}
