package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const proofDownloadExpiry = 10 * time.Minute

// ProofStore persists payment proof files submitted through the bot and hands
// admins short-lived download links for review.
type ProofStore struct {
	client *gcs.Client
	copier *Copier
	urls   *Client
	bucket string
}

// NewProofStore constructs a ProofStore writing to the given bucket. The
// signed URL client is optional; without it DownloadURL returns an error.
func NewProofStore(client *gcs.Client, urls *Client, bucket string) (*ProofStore, error) {
	if client == nil {
		return nil, errors.New("storage proofs: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	copier, err := NewCopier(client)
	if err != nil {
		return nil, err
	}
	return &ProofStore{client: client, copier: copier, urls: urls, bucket: bucket}, nil
}

// Save streams the proof content into the incoming prefix and returns the
// object name used as the transaction's proof reference.
func (s *ProofStore) Save(ctx context.Context, params PathParams, contentType string, content io.Reader) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage proofs: store not initialised")
	}
	if content == nil {
		return "", errors.New("storage proofs: content is required")
	}

	object, err := BuildObjectPath(PurposeProofIncoming, params)
	if err != nil {
		return "", err
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if ct := strings.TrimSpace(contentType); ct != "" {
		writer.ContentType = ct
	}
	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage proofs: write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage proofs: finalise object: %w", err)
	}
	return object, nil
}

// Archive copies an accepted proof from the incoming prefix to the validated
// one and returns the new object name. The incoming object is kept.
func (s *ProofStore) Archive(ctx context.Context, proofRef string) (string, error) {
	if s == nil || s.copier == nil {
		return "", errors.New("storage proofs: store not initialised")
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return "", errInvalidObject
	}
	if !strings.Contains(proofRef, "/incoming/") {
		return proofRef, nil
	}

	validated := strings.Replace(proofRef, "/incoming/", "/validated/", 1)
	if err := s.copier.CopyObject(ctx, s.bucket, proofRef, validated); err != nil {
		return "", fmt.Errorf("storage proofs: archive object: %w", err)
	}
	return validated, nil
}

// DownloadURL mints a short-lived signed URL for admin review of a proof.
func (s *ProofStore) DownloadURL(ctx context.Context, proofRef string) (string, error) {
	if s == nil {
		return "", errors.New("storage proofs: store not initialised")
	}
	if s.urls == nil {
		return "", errors.New("storage proofs: signed url client not configured")
	}

	result, err := s.urls.SignedURL(ctx, s.bucket, proofRef, SignedURLOptions{
		Download: &DownloadOptions{
			ExpiresIn:      proofDownloadExpiry,
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return "", err
	}
	return result.URL, nil
}
