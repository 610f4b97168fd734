package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/utafrali/catalogcore/pkg/breaker"
)

// Breaker guards an ObjectStore with one circuit breaker per operation,
// so a failing bucket fails fast instead of holding requests for the full
// call timeout.
type Breaker struct {
	next    ObjectStore
	uploads *breaker.Breaker[*Object]
	deletes *breaker.Breaker[struct{}]
}

// NewBreaker wraps next. Not-found deletes count as successes.
func NewBreaker(next ObjectStore, cfg breaker.Config, logger *slog.Logger) *Breaker {
	uploadCfg := cfg
	uploadCfg.Name = cfg.Name + "-upload"
	deleteCfg := cfg
	deleteCfg.Name = cfg.Name + "-delete"

	return &Breaker{
		next:    next,
		uploads: breaker.New[*Object](uploadCfg, nil, logger),
		deletes: breaker.New[struct{}](deleteCfg, func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound)
		}, logger),
	}
}

// Upload implements ObjectStore.
func (b *Breaker) Upload(ctx context.Context, input *UploadInput) (*Object, error) {
	obj, err := b.uploads.Execute(func() (*Object, error) {
		return b.next.Upload(ctx, input)
	})
	if err != nil {
		return nil, UploadError(input.Folder, err)
	}
	return obj, nil
}

// Delete implements ObjectStore.
func (b *Breaker) Delete(ctx context.Context, remoteID string) error {
	_, err := b.deletes.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Delete(ctx, remoteID)
	})
	if err != nil {
		return DeleteError(remoteID, err)
	}
	return nil
}
