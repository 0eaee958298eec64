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

package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

const GCSScheme = "gs://"

// GCSObject identifies an object in Cloud Storage.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// URI returns the gs:// form of the object.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("%s%s/%s", GCSScheme, o.Bucket, o.Name)
}

// PublicURL returns the authenticated browser URL of the object.
func (o *GCSObject) PublicURL() string {
	return fmt.Sprintf("https://storage.mtls.cloud.google.com/%s/%s", o.Bucket, o.Name)
}

// ParseGCSURI splits "gs://bucket/path/to/object" into its parts.
func ParseGCSURI(uri string) (*GCSObject, error) {
	if !strings.HasPrefix(uri, GCSScheme) {
		return nil, fmt.Errorf("not a gs:// uri: %q", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, GCSScheme), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("gs:// uri needs a bucket and an object: %q", uri)
	}
	return &GCSObject{Bucket: parts[0], Name: parts[1]}, nil
}

// ObjectStore is the narrow slice of Cloud Storage the pipeline uses.
type ObjectStore struct {
	client *storage.Client
}

func NewObjectStore(client *storage.Client) *ObjectStore {
	return &ObjectStore{client: client}
}

// NewReader streams the content of an object.
func (s *ObjectStore) NewReader(ctx context.Context, obj *GCSObject) (io.ReadCloser, error) {
	return s.client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
}

// NewWriter opens an upload stream. The object only exists once the writer
// is closed without error.
func (s *ObjectStore) NewWriter(ctx context.Context, obj *GCSObject) io.WriteCloser {
	w := s.client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(ctx)
	if obj.MIMEType != "" {
		w.ContentType = obj.MIMEType
	}
	return w
}
