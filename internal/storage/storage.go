// Package storage defines the remote object store the media lifecycle
// manager uploads product images and brand logos to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrUpload marks a failed upload.
	ErrUpload = errors.New("upload failed")

	// ErrRemoteDelete marks a failed delete.
	ErrRemoteDelete = errors.New("remote delete failed")

	// ErrObjectNotFound is returned by Delete when the object does not
	// exist. Callers treat it as a successful delete.
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectStore is a remote binary store addressed by remote id.
type ObjectStore interface {
	// Upload stores the payload under Folder and returns its remote id and
	// public URL.
	Upload(ctx context.Context, input *UploadInput) (*Object, error)

	// Delete removes the object with the given remote id.
	Delete(ctx context.Context, remoteID string) error
}

// UploadInput holds the parameters for uploading an object.
type UploadInput struct {
	Folder      string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Object is a stored object reference.
type Object struct {
	RemoteID string
	URL      string
}

// NewKey generates a unique object key inside folder. The extension is
// derived from the content type when it is known.
func NewKey(folder, contentType string) string {
	key := uuid.New().String()
	if m := mimetype.Lookup(contentType); m != nil {
		key += m.Extension()
	}
	if folder = strings.Trim(folder, "/"); folder != "" {
		key = folder + "/" + key
	}
	return key
}

// UploadError wraps err so that it matches ErrUpload.
func UploadError(key string, err error) error {
	if errors.Is(err, ErrUpload) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUpload, key, err)
}

// DeleteError wraps err so that it matches ErrRemoteDelete. Not-found
// errors pass through unchanged.
func DeleteError(remoteID string, err error) error {
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrRemoteDelete) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrRemoteDelete, remoteID, err)
}
