// Package event publishes catalog domain events to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/media"
	"github.com/utafrali/catalogcore/internal/review"
	pkgkafka "github.com/utafrali/catalogcore/pkg/kafka"
	"github.com/utafrali/catalogcore/pkg/logger"
)

// Topics.
var (
	TopicProductCreated = pkgkafka.Topic("product", "created")
	TopicProductUpdated = pkgkafka.Topic("product", "updated")
	TopicProductDeleted = pkgkafka.Topic("product", "deleted")
	TopicReviewUpserted = pkgkafka.Topic("review", "upserted")
	TopicReviewDeleted  = pkgkafka.Topic("review", "deleted")
	TopicMediaOrphaned  = pkgkafka.Topic("media", "orphaned")
)

const (
	AggregateTypeProduct = "product"
	SourceCatalog        = "catalog-service"
)

// ProductData is the payload of product.created and product.updated.
type ProductData struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Brand          string   `json:"brand"`
	Price          float64  `json:"price"`
	CuttedPrice    float64  `json:"cutted_price"`
	Stock          int      `json:"stock"`
	ImageURLs      []string `json:"image_urls"`
	RatingsAverage float64  `json:"ratings_average"`
	ReviewCount    int      `json:"review_count"`
}

// ProductDeletedData is the payload of product.deleted.
type ProductDeletedData struct {
	ID string `json:"id"`
}

// ReviewData is the payload of review.upserted and review.deleted.
type ReviewData struct {
	ProductID      string  `json:"product_id"`
	ReviewID       string  `json:"review_id"`
	UserID         string  `json:"user_id,omitempty"`
	Rating         int     `json:"rating,omitempty"`
	Outcome        string  `json:"outcome,omitempty"`
	RatingsAverage float64 `json:"ratings_average"`
	ReviewCount    int     `json:"review_count"`
}

// OrphanData is the payload of media.orphaned. Consumers reconcile the
// listed objects against the product record.
type OrphanData struct {
	ProductID string   `json:"product_id"`
	RemoteIDs []string `json:"remote_ids"`
	Reason    string   `json:"reason"`
}

// Publisher sends one event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes catalog domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

var _ media.OrphanReporter = (*Producer)(nil)

// NewProducer creates a producer on top of publisher.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

func productData(p *domain.Product) ProductData {
	urls := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		urls = append(urls, img.URL)
	}
	return ProductData{
		ID:             p.ID,
		Name:           p.Name,
		Category:       p.Category,
		Brand:          p.Brand.Name,
		Price:          p.Price,
		CuttedPrice:    p.CuttedPrice,
		Stock:          p.Stock,
		ImageURLs:      urls,
		RatingsAverage: p.RatingsAverage,
		ReviewCount:    p.ReviewCount,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, version int64, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeProduct, SourceCatalog, version, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if id := logger.PrincipalIDFromContext(ctx); id != "" {
		evt.WithMetadata("principal_id", id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("product_id", aggregateID),
	)
	return nil
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, product.ID, product.Version, productData(product))
}

// PublishProductUpdated publishes a product.updated event.
func (p *Producer) PublishProductUpdated(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductUpdated, product.ID, product.Version, productData(product))
}

// PublishProductDeleted publishes a product.deleted event.
func (p *Producer) PublishProductDeleted(ctx context.Context, product *domain.Product) error {
	return p.publish(ctx, TopicProductDeleted, product.ID, product.Version, ProductDeletedData{ID: product.ID})
}

// PublishReviewUpserted publishes a review.upserted event for rev, which
// is already applied to product.
func (p *Producer) PublishReviewUpserted(ctx context.Context, product *domain.Product, rev domain.Review, outcome review.Outcome) error {
	return p.publish(ctx, TopicReviewUpserted, product.ID, product.Version, ReviewData{
		ProductID:      product.ID,
		ReviewID:       rev.ID,
		UserID:         rev.UserID,
		Rating:         rev.Rating,
		Outcome:        outcome.String(),
		RatingsAverage: product.RatingsAverage,
		ReviewCount:    product.ReviewCount,
	})
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, product *domain.Product, reviewID string) error {
	return p.publish(ctx, TopicReviewDeleted, product.ID, product.Version, ReviewData{
		ProductID:      product.ID,
		ReviewID:       reviewID,
		RatingsAverage: product.RatingsAverage,
		ReviewCount:    product.ReviewCount,
	})
}

// ReportOrphans publishes a media.orphaned event. Failures are logged.
func (p *Producer) ReportOrphans(ctx context.Context, o media.Orphans) {
	err := p.publish(ctx, TopicMediaOrphaned, o.ProductID, 0, OrphanData{
		ProductID: o.ProductID,
		RemoteIDs: o.RemoteIDs,
		Reason:    o.Reason,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to report orphaned media",
			slog.String("product_id", o.ProductID),
			slog.Any("remote_ids", o.RemoteIDs),
			slog.String("error", err.Error()),
		)
	}
}

// Discard is a Publisher that drops every event. It stands in when no
// brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, string, *pkgkafka.Event) error { return nil }
