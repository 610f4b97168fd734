// Package media keeps product image and brand logo references consistent
// with the remote object store across create, replace and delete.
//
// A mutation stages its uploads first (Prepare*), the caller persists the
// record, and then either Finalize retires the replaced assets or Abort
// rolls the staged uploads back. A record therefore never references an
// asset that was deleted, and staged assets are never left unrecorded
// without being reported.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/storage"
	"github.com/utafrali/catalogcore/pkg/breaker"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/httpclient"
	"github.com/utafrali/catalogcore/pkg/logger"
	"github.com/utafrali/catalogcore/pkg/retry"
)

// Config tunes the manager's remote calls.
type Config struct {
	ImageFolder string
	LogoFolder  string

	// CallTimeout bounds a single object store call.
	CallTimeout time.Duration

	// MaxAttempts is the number of tries per call before giving up.
	MaxAttempts int

	// RetryWait is the first backoff interval.
	RetryWait time.Duration

	// Concurrency limits parallel uploads within one mutation.
	Concurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ImageFolder: "products",
		LogoFolder:  "brands",
		CallTimeout: 10 * time.Second,
		MaxAttempts: 3,
		RetryWait:   200 * time.Millisecond,
		Concurrency: 4,
	}
}

// Fetcher downloads remote image payloads.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httpclient.Body, error)
}

// Orphan reasons.
const (
	// ReasonRollback: a staged upload could not be deleted after a failure.
	ReasonRollback = "rollback"
	// ReasonRetire: a replaced asset could not be deleted after commit.
	ReasonRetire = "retire"
	// ReasonDangling: a purge deleted these objects but the record that
	// references them could not be removed.
	ReasonDangling = "dangling_reference"
)

// Orphans lists remote objects whose record correspondence is broken and
// need reconciliation.
type Orphans struct {
	ProductID string
	RemoteIDs []string
	Reason    string
}

// OrphanReporter receives orphan reports. Implementations must not block
// for long; reports are best effort.
type OrphanReporter interface {
	ReportOrphans(ctx context.Context, o Orphans)
}

// Manager runs the asset lifecycle against an object store.
type Manager struct {
	store   storage.ObjectStore
	fetcher Fetcher
	orphans OrphanReporter
	cfg     Config
	logger  *slog.Logger
}

// NewManager creates a manager. fetcher and orphans may be nil: remote URL
// payloads are then rejected and orphans are only logged.
func NewManager(store storage.ObjectStore, fetcher Fetcher, orphans OrphanReporter, cfg Config, logger *slog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.ImageFolder == "" {
		cfg.ImageFolder = def.ImageFolder
	}
	if cfg.LogoFolder == "" {
		cfg.LogoFolder = def.LogoFolder
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Manager{
		store:   store,
		fetcher: fetcher,
		orphans: orphans,
		cfg:     cfg,
		logger:  logger,
	}
}

// Update describes the asset changes requested by a product update.
type Update struct {
	// ReplaceImages is set when the caller supplied an image set, which
	// may be empty. Otherwise the current images are kept.
	ReplaceImages bool
	Images        []Payload

	// Logo replaces the brand logo when non-nil.
	Logo *Payload
}

// PrepareCreate uploads every image and the optional logo of a new
// product. On failure all uploads of this call are rolled back and the
// error is returned.
func (m *Manager) PrepareCreate(ctx context.Context, productID string, images []Payload, logo *Payload) (*Change, error) {
	c := &Change{ProductID: productID}
	if len(images) > 0 {
		c.images = newGroup(GroupImages, m.cfg.ImageFolder, images, nil)
	}
	if logo != nil {
		c.logo = newGroup(GroupLogo, m.cfg.LogoFolder, []Payload{*logo}, nil)
	}
	if err := m.upload(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PrepareUpdate uploads the replacement assets of current. The assets
// being replaced are only deleted by Finalize, after the caller committed
// the new references.
func (m *Manager) PrepareUpdate(ctx context.Context, current *domain.Product, u Update) (*Change, error) {
	c := &Change{ProductID: current.ID}
	if u.ReplaceImages {
		var old []string
		for _, img := range current.Images {
			if !img.IsZero() {
				old = append(old, img.RemoteID)
			}
		}
		c.images = newGroup(GroupImages, m.cfg.ImageFolder, u.Images, old)
	}
	if u.Logo != nil {
		var old []string
		if !current.Brand.Logo.IsZero() {
			old = []string{current.Brand.Logo.RemoteID}
		}
		c.logo = newGroup(GroupLogo, m.cfg.LogoFolder, []Payload{*u.Logo}, old)
	}
	if err := m.upload(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Finalize marks the change committed and deletes the replaced assets.
// Deletes that fail are reported as orphans; the record is already
// committed so they are not returned as errors.
func (m *Manager) Finalize(ctx context.Context, c *Change) error {
	if c == nil {
		return nil
	}
	if err := c.advance(Committed); err != nil {
		return err
	}

	retired := c.Retired()
	if len(retired) == 0 {
		return nil
	}
	if failed := m.deleteAll(context.WithoutCancel(ctx), retired); len(failed) > 0 {
		m.reportOrphans(ctx, Orphans{ProductID: c.ProductID, RemoteIDs: failed, Reason: ReasonRetire})
	}
	return nil
}

// Abort rolls back the staged uploads of c after the caller failed to
// persist them.
func (m *Manager) Abort(ctx context.Context, c *Change) error {
	if c == nil {
		return nil
	}
	return m.rollback(ctx, c)
}

// Purge deletes every asset p references, stopping at the first failure.
// A failure means the record must not be removed; objects deleted before
// it are reported as dangling references.
func (m *Manager) Purge(ctx context.Context, p *domain.Product) error {
	ids := p.RemoteIDs()
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := m.deleteOne(ctx, id); err != nil {
			logger.WithContext(ctx, m.logger).ErrorContext(ctx, "purge product media failed",
				slog.String("product_id", p.ID),
				slog.String("remote_id", id),
				slog.Int("deleted", len(deleted)),
				slog.String("error", err.Error()),
			)
			if len(deleted) > 0 {
				m.reportOrphans(ctx, Orphans{ProductID: p.ID, RemoteIDs: deleted, Reason: ReasonDangling})
			}
			return apperrors.StorageUnavailable("delete product media", err)
		}
		deleted = append(deleted, id)
	}
	return nil
}

// upload runs every pending upload of c concurrently and joins them. On
// the first failure the remaining uploads are cancelled and c is rolled
// back.
func (m *Manager) upload(ctx context.Context, c *Change) error {
	if err := c.advance(Uploading); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, grp := range c.groups() {
		for i := range grp.payloads {
			g.Go(func() error {
				asset, err := m.uploadOne(gctx, grp.folder, grp.payloads[i])
				if err != nil {
					return fmt.Errorf("%s %d: %w", grp.name, i, err)
				}
				grp.uploaded[i] = asset
				return nil
			})
		}
	}

	err := g.Wait()
	if err == nil {
		return nil
	}

	logger.WithContext(ctx, m.logger).WarnContext(ctx, "asset upload failed, rolling back",
		slog.String("product_id", c.ProductID),
		slog.Int("uploaded", len(c.Uploaded())),
		slog.String("error", err.Error()),
	)
	if rbErr := m.rollback(ctx, c); rbErr != nil {
		return errors.Join(err, rbErr)
	}
	return err
}

func (m *Manager) rollback(ctx context.Context, c *Change) error {
	if err := c.advance(RollingBack); err != nil {
		return err
	}
	if staged := c.Uploaded(); len(staged) > 0 {
		if failed := m.deleteAll(context.WithoutCancel(ctx), staged); len(failed) > 0 {
			m.reportOrphans(ctx, Orphans{ProductID: c.ProductID, RemoteIDs: failed, Reason: ReasonRollback})
		}
	}
	return c.advance(Failed)
}

func (m *Manager) uploadOne(ctx context.Context, folder string, p Payload) (domain.ImageAsset, error) {
	data, contentType, err := m.resolve(ctx, p)
	if err != nil {
		return domain.ImageAsset{}, err
	}

	obj, err := call(ctx, m, "upload", func(ctx context.Context) (*storage.Object, error) {
		return m.store.Upload(ctx, &storage.UploadInput{
			Folder:      folder,
			ContentType: contentType,
			Size:        int64(len(data)),
			Data:        bytes.NewReader(data),
		})
	})
	if err != nil {
		return domain.ImageAsset{}, apperrors.StorageUnavailable("upload image", err)
	}
	return domain.ImageAsset{RemoteID: obj.RemoteID, URL: obj.URL}, nil
}

// resolve returns the bytes and content type of p, fetching remote
// payloads.
func (m *Manager) resolve(ctx context.Context, p Payload) ([]byte, string, error) {
	if !p.IsRemote() {
		return p.data, p.contentType, nil
	}
	if m.fetcher == nil {
		return nil, "", apperrors.InvalidInput("remote image urls are not supported")
	}

	body, err := m.fetcher.Fetch(ctx, p.url)
	if err != nil {
		if httpclient.IsClientFailure(err) {
			return nil, "", apperrors.InvalidInput(fmt.Sprintf("image url %s could not be fetched", p.url))
		}
		return nil, "", apperrors.StorageUnavailable("fetch image", err)
	}
	contentType, err := detectImage(body.Data)
	if err != nil {
		return nil, "", err
	}
	return body.Data, contentType, nil
}

// deleteOne deletes id. A missing object counts as deleted.
func (m *Manager) deleteOne(ctx context.Context, id string) error {
	_, err := call(ctx, m, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.store.Delete(ctx, id)
	})
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil
	}
	return err
}

// deleteAll deletes every id and returns those that could not be deleted.
func (m *Manager) deleteAll(ctx context.Context, ids []string) []string {
	var failed []string
	for _, id := range ids {
		if err := m.deleteOne(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "asset delete failed",
				slog.String("remote_id", id),
				slog.String("error", err.Error()),
			)
			failed = append(failed, id)
		}
	}
	return failed
}

func (m *Manager) reportOrphans(ctx context.Context, o Orphans) {
	orphansTotal.WithLabelValues(o.Reason).Add(float64(len(o.RemoteIDs)))
	logger.WithContext(ctx, m.logger).ErrorContext(ctx, "orphaned media assets",
		slog.String("product_id", o.ProductID),
		slog.String("reason", o.Reason),
		slog.Any("remote_ids", o.RemoteIDs),
	)
	if m.orphans != nil {
		m.orphans.ReportOrphans(context.WithoutCancel(ctx), o)
	}
}

// call runs one object store operation with a per-attempt timeout and
// bounded retries.
func call[T any](ctx context.Context, m *Manager, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	cfg := retry.Config{
		MaxAttempts:     m.cfg.MaxAttempts,
		InitialInterval: m.cfg.RetryWait,
		MaxInterval:     8 * m.cfg.RetryWait,
		Retryable: func(err error) bool {
			return !errors.Is(err, storage.ErrObjectNotFound) && !breaker.IsRejected(err)
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			m.logger.WarnContext(ctx, "object store call failed, retrying",
				slog.String("operation", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		},
	}

	v, err := retry.Do(ctx, cfg, func(ctx context.Context) (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
		return fn(callCtx)
	})

	status := "ok"
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		status = "error"
	}
	remoteCallDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return v, err
}
