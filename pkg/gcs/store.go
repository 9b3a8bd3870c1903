// Package gcs stores backup files in a Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	backupdomain "github.com/Retr0-XD/FInance-Monkey/internal/backup/domain"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var _ backupdomain.Store = (*Store)(nil)

type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewStore opens a bucket. objectPrefix is prepended to every object name, e.g. "backups/".
func NewStore(ctx context.Context, bucket, objectPrefix, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if objectPrefix != "" && !strings.HasSuffix(objectPrefix, "/") {
		objectPrefix += "/"
	}
	return &Store{client: client, bucket: bucket, prefix: objectPrefix}, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.prefix + name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", name, err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, prefix string) (string, []byte, error) {
	bkt := s.client.Bucket(s.bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})

	var newest *storage.ObjectAttrs
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("list objects: %w", err)
		}
		if newest == nil || attrs.Created.After(newest.Created) {
			newest = attrs
		}
	}
	if newest == nil {
		return "", nil, nil
	}

	r, err := bkt.Object(newest.Name).NewReader(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("read GCS object: %w", err)
	}
	return strings.TrimPrefix(newest.Name, s.prefix), data, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
