// Package objectstore wraps the object-store uploader (out of scope per
// §1, consumed only via its PutObject interface per §6's wire-protocol
// list) using the AWS SDK, the teacher pack's S3-capable dependency.
package objectstore

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/kermitt2/article-dataset-builder/internal/errs"
)

// Store uploads artifacts to a single configured bucket.
type Store struct {
	bucket       string
	storageClass string
	svc          *s3.S3
	log          logrus.FieldLogger
}

// New opens a session against the given region/credentials.
func New(region, bucket, storageClass, accessKeyID, secretKey string, log logrus.FieldLogger) (*Store, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if accessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(accessKeyID, secretKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errs.Config("open object-store session", err)
	}
	if storageClass == "" {
		storageClass = s3.StorageClassStandard
	}
	return &Store{
		bucket:       bucket,
		storageClass: storageClass,
		svc:          s3.New(sess),
		log:          log,
	}, nil
}

// PutFile uploads the local file at path to key, atomically, with the
// configured storage class.
func (s *Store) PutFile(ctx context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Storage("read file for object-store upload", err)
	}
	return s.Put(ctx, key, data)
}

// Put uploads raw bytes to key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		StorageClass: aws.String(s.storageClass),
	})
	if err != nil {
		return errs.Network("put object", err)
	}
	return nil
}

// PutStream uploads from an io.Reader, for callers that already hold an
// open handle (e.g. a dump file written in the same process).
func (s *Store) PutStream(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errs.Storage("read stream for object-store upload", err)
	}
	return s.Put(ctx, key, data)
}
