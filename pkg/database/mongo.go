package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/utafrali/catalogcore/pkg/retry"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DB" envDefault:"catalog"`

	// Snapshot enables snapshot sessions for search reads. Requires a
	// replica set or sharded cluster.
	Snapshot bool `env:"MONGO_SNAPSHOT_READS" envDefault:"true"`

	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"50"`
}

// NewMongoClient connects to MongoDB and pings the primary, retrying
// transient connection failures. logger may be nil.
func NewMongoClient(ctx context.Context, cfg *MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := retry.Do(ctx, connectRetry(logger, "mongo connection"), func(ctx context.Context) (*mongo.Client, error) {
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}
		return client, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	return client, nil
}
