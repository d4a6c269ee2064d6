// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Object storage for the thumbnail pipeline: reading operator-uploaded
// reference images and persisting rendered thumbnails. Rendered objects are
// private; access goes through short-lived V4 signed URLs signed by the IAM
// Credentials API, so no service account key ever touches disk.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"google.golang.org/api/iterator"

	"github.com/creatorscope/channelintel/internal/core/errs"
)

// SignedURLTTL is how long a rendered-thumbnail link stays valid.
const SignedURLTTL = 15 * time.Minute

// maxReferenceBytes caps a single reference image read.
const maxReferenceBytes = 20 << 20

// GCSReferenceStore reads reference thumbnails from the reference bucket.
type GCSReferenceStore struct {
	client *storage.Client
	bucket string
}

// NewGCSReferenceStore binds a reference store to its bucket.
func NewGCSReferenceStore(client *storage.Client, bucket string) *GCSReferenceStore {
	return &GCSReferenceStore{client: client, bucket: bucket}
}

// ListImages returns every readable image object under prefix. Objects that
// do not sniff as images are skipped with a log line; read failures on
// individual objects are skipped the same way so one bad upload cannot sink
// the analysis.
func (s *GCSReferenceStore) ListImages(ctx context.Context, prefix string) ([]ReferenceImage, error) {
	var images []ReferenceImage
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix + "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(err, errs.KindUpstreamTransient,
				"failed to list reference images under %s/%s", s.bucket, prefix)
		}

		data, err := s.readObject(ctx, attrs.Name)
		if err != nil {
			slog.Warn("skipping unreadable reference image", "object", attrs.Name, "error", err)
			continue
		}
		kind, _ := filetype.Match(data)
		if kind.MIME.Type != "image" {
			slog.Warn("skipping non-image reference object", "object", attrs.Name)
			continue
		}
		images = append(images, ReferenceImage{
			Name:     attrs.Name,
			MIMEType: kind.MIME.Value,
			Data:     data,
		})
	}
	return images, nil
}

func (s *GCSReferenceStore) readObject(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func(reader *storage.Reader) {
		_ = reader.Close()
	}(reader)
	return io.ReadAll(io.LimitReader(reader, maxReferenceBytes))
}

// AssetStore persists rendered thumbnails and signs access URLs.
type AssetStore struct {
	client      *storage.Client
	iamClient   *credentials.IamCredentialsClient
	bucket      string
	signerEmail string
}

// NewAssetStore binds the rendered-thumbnail bucket and its URL signer.
//
// Inputs:
//   - client: the shared GCS client.
//   - iamClient: IAM Credentials client used to sign URL payloads. May be
//     nil, in which case SignedURL falls back to ambient credentials.
//   - bucket: destination bucket for rendered thumbnails.
//   - signerEmail: service account whose identity signs the URLs.
func NewAssetStore(client *storage.Client, iamClient *credentials.IamCredentialsClient, bucket, signerEmail string) *AssetStore {
	return &AssetStore{
		client:      client,
		iamClient:   iamClient,
		bucket:      bucket,
		signerEmail: signerEmail,
	}
}

// Save writes one rendered thumbnail and returns its object path. The
// object's extension and content type come from sniffing the bytes; anything
// that is not PNG, JPEG or WebP is rejected.
func (s *AssetStore) Save(ctx context.Context, projectID string, data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", errs.Validation("rendered thumbnail is not a recognized image format")
	}
	switch kind {
	case matchers.TypePng, matchers.TypeJpeg, matchers.TypeWebp:
	default:
		return "", errs.Validation("rendered thumbnail has unsupported format %s", kind.Extension)
	}

	name := fmt.Sprintf("%s/%s.%s", projectID, uuid.NewString(), kind.Extension)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = kind.MIME.Value
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", errs.Wrap(err, errs.KindUpstreamTransient, "failed to write thumbnail %s", name)
	}
	if err := writer.Close(); err != nil {
		return "", errs.Wrap(err, errs.KindUpstreamTransient, "failed to finalize thumbnail %s", name)
	}
	return name, nil
}

// SignedURL returns a time-limited GET URL for a stored thumbnail. Signing
// goes through the IAM Credentials API when a signer is configured.
func (s *AssetStore) SignedURL(ctx context.Context, objectPath string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(SignedURLTTL),
	}
	if s.iamClient != nil && s.signerEmail != "" {
		opts.GoogleAccessID = s.signerEmail
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			resp, err := s.iamClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.signerEmail),
				Payload: payload,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}

	u, err := s.client.Bucket(s.bucket).SignedURL(objectPath, opts)
	if err != nil {
		return "", errs.Wrap(err, errs.KindUpstreamTransient, "failed to sign URL for %s", objectPath)
	}
	return u, nil
}
