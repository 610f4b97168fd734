package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/event"
	"github.com/utafrali/catalogcore/internal/repository"
	"github.com/utafrali/catalogcore/internal/review"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/logger"
	"github.com/utafrali/catalogcore/pkg/retry"
	"github.com/utafrali/catalogcore/pkg/tracing"
)

// DefaultReviewRetry is the optimistic retry budget for review writes.
func DefaultReviewRetry() retry.Config {
	return retry.Config{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

// ReviewService upserts and removes reviews. Every write re-reads the
// product, applies the change in memory and stores it only if no other
// writer got in between; a lost race is retried from a fresh read.
type ReviewService struct {
	repo     repository.ProductRepository
	producer *event.Producer
	retry    retry.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewReviewService creates a review service.
func NewReviewService(repo repository.ProductRepository, producer *event.Producer, retryCfg retry.Config, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		repo:     repo,
		producer: producer,
		retry:    retryCfg,
		logger:   logger,
		tracer:   tracing.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpsertReview creates or replaces the review of in.UserID on productID.
func (s *ReviewService) UpsertReview(ctx context.Context, productID string, in review.Input) (p *domain.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "ReviewService.UpsertReview",
		trace.WithAttributes(attribute.String("product.id", productID)))
	defer func() { tracing.End(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	ctx = logger.WithProductID(logger.WithPrincipalID(ctx, in.UserID), productID)

	var outcome review.Outcome
	p, err = s.update(ctx, "upsert_review", productID, func(cur *domain.Product) (*domain.Product, error) {
		next, o, err := review.Apply(cur, in, s.now())
		if err != nil {
			return nil, err
		}
		outcome = o
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range p.Reviews {
		if r.UserID != in.UserID {
			continue
		}
		if err := s.producer.PublishReviewUpserted(ctx, p, r, outcome); err != nil {
			s.logPublishFailure(ctx, "review.upserted", err)
		}
		break
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "review saved",
		slog.String("outcome", outcome.String()),
		slog.Int("review_count", p.ReviewCount),
		slog.Float64("ratings_average", p.RatingsAverage),
	)
	return p, nil
}

// DeleteReview removes reviewID from productID. An unknown review id is
// not an error; the aggregate is still recomputed and stored.
func (s *ReviewService) DeleteReview(ctx context.Context, productID, reviewID string) (p *domain.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "ReviewService.DeleteReview",
		trace.WithAttributes(attribute.String("product.id", productID)))
	defer func() { tracing.End(span, err) }()

	ctx = logger.WithProductID(ctx, productID)

	removed := false
	p, err = s.update(ctx, "delete_review", productID, func(cur *domain.Product) (*domain.Product, error) {
		next, ok := review.Remove(cur, reviewID)
		removed = ok
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	if removed {
		if err := s.producer.PublishReviewDeleted(ctx, p, reviewID); err != nil {
			s.logPublishFailure(ctx, "review.deleted", err)
		}
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "review deleted",
		slog.String("review_id", reviewID),
		slog.Bool("removed", removed),
		slog.Int("review_count", p.ReviewCount),
	)
	return p, nil
}

// ListReviews returns the reviews of productID.
func (s *ReviewService) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p.Reviews == nil {
		return []domain.Review{}, nil
	}
	return p.Reviews, nil
}

// update runs read, mutate and conditional write until the write lands or
// the retry budget is spent.
func (s *ReviewService) update(ctx context.Context, op, productID string, mutate func(*domain.Product) (*domain.Product, error)) (*domain.Product, error) {
	cfg := s.retry
	cfg.Retryable = func(err error) bool { return errors.Is(err, errStale) }
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		writeConflicts.WithLabelValues(op).Inc()
		logger.WithContext(ctx, s.logger).DebugContext(ctx, "product write lost a race, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
		)
	}

	p, err := retry.Do(ctx, cfg, func(ctx context.Context) (*domain.Product, error) {
		cur, err := s.repo.GetByID(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		next, err := mutate(cur)
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateIfVersion(ctx, next, cur.Version); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				return nil, fmt.Errorf("%w: %w", errStale, err)
			}
			return nil, fmt.Errorf("update product: %w", err)
		}
		return next, nil
	})
	if errors.Is(err, errStale) {
		writeConflictsExhausted.WithLabelValues(op).Inc()
		return nil, apperrors.Conflict(fmt.Sprintf("product %s is being modified concurrently, try again", productID))
	}
	return p, err
}

func (s *ReviewService) logPublishFailure(ctx context.Context, what string, err error) {
	logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to publish event",
		slog.String("event", what),
		slog.String("error", err.Error()),
	)
}
