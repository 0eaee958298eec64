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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-clip-studio/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-studio/internal/core/model"
)

// GenerationStore reads generation records.
type GenerationStore interface {
	Get(ctx context.Context, id string) (*model.Generation, error)
	List(ctx context.Context, limit int) ([]*model.Generation, error)
}

// BigQueryGenerationStore reads the table the pipeline's persist step writes.
type BigQueryGenerationStore struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	Table          string
}

// GetFQN returns the table name in the `project.dataset.table` form queries use.
func (s *BigQueryGenerationStore) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.Table).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

func (s *BigQueryGenerationStore) Get(ctx context.Context, id string) (*model.Generation, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryFindGenerationById, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := &model.Generation{}
	err = itr.Next(out)
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BigQueryGenerationStore) List(ctx context.Context, limit int) ([]*model.Generation, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryRecentGenerations, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Generation, 0, limit)
	for {
		row := &model.Generation{}
		err := itr.Next(row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// URLSigner hands out time-limited read URLs for Cloud Storage objects.
type URLSigner interface {
	SignedURL(ctx context.Context, obj *cloud.GCSObject, expires time.Duration) (string, error)
}

// GCSURLSigner signs V4 URLs with the IAM credentials API, so the server does
// not need a private key for the signing service account.
type GCSURLSigner struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	SignerEmail   string
}

func (s *GCSURLSigner) SignedURL(ctx context.Context, obj *cloud.GCSObject, expires time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(expires),
		GoogleAccessID: s.SignerEmail,
		SignBytes: func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		},
	}
	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).Object(%q).SignedURL: %w", obj.Bucket, obj.Name, err)
	}
	return u, nil
}

// ParsePublicURL reverses cloud.GCSObject.PublicURL.
func ParsePublicURL(url string) (*cloud.GCSObject, error) {
	const prefix = "https://storage.mtls.cloud.google.com/"
	if !strings.HasPrefix(url, prefix) {
		return nil, fmt.Errorf("invalid GCS URL format: %s", url)
	}
	parts := strings.SplitN(strings.TrimPrefix(url, prefix), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid GCS URL: unable to determine bucket and object from %s", url)
	}
	return &cloud.GCSObject{Bucket: parts[0], Name: parts[1]}, nil
}
