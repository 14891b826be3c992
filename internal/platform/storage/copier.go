package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Copier moves objects between prefixes of a bucket. Proof archival copies
// accepted uploads from the incoming prefix to the validated one.
type Copier struct {
	client *gcs.Client
}

// NewCopier constructs a Copier backed by the provided Cloud Storage client.
func NewCopier(client *gcs.Client) (*Copier, error) {
	if client == nil {
		return nil, errors.New("storage copier: client is required")
	}
	return &Copier{client: client}, nil
}

// CopyObject copies an object to a new name within the same bucket. The
// source object is left in place; retention of originals is handled by bucket
// lifecycle rules.
func (c *Copier) CopyObject(ctx context.Context, bucket, srcObject, dstObject string) error {
	if c == nil || c.client == nil {
		return errors.New("storage copier: client is not initialised")
	}

	bucket = strings.TrimSpace(bucket)
	srcObject = strings.TrimSpace(srcObject)
	dstObject = strings.TrimSpace(dstObject)

	if bucket == "" {
		return errInvalidBucket
	}
	if srcObject == "" || dstObject == "" {
		return errInvalidObject
	}
	if srcObject == dstObject {
		return nil
	}

	b := c.client.Bucket(bucket)
	_, err := b.Object(dstObject).CopierFrom(b.Object(srcObject)).Run(ctx)
	return err
}
