package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// S3 is the object-store Blob Store backend, backed by a MinIO client
// speaking the S3 API.
type S3 struct {
	client *minio.Client
	bucket string
	log    *logrus.Entry
}

func NewS3(endpoint, accessKey, secretKey, bucket string, useSSL bool, log *logrus.Entry) (*S3, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect minio: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket %q: %w", bucket, err)
		}
		log.WithField("bucket", bucket).Info("created storage bucket")
	}

	return &S3{client: client, bucket: bucket, log: log}, nil
}

// s3Writer streams into the temp object key via an io.Pipe feeding a
// background PutObject call; MinIO has no true rename, so Commit does
// a server-side CopyObject to the final key followed by removing the
// temp object, the closest available approximation to the local
// backend's atomic rename.
type s3Writer struct {
	s       *S3
	tmpKey  string
	finKey  string
	pw      *io.PipeWriter
	done    chan error
	wroteOK bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	n, err := w.pw.Write(p)
	if err == nil {
		w.wroteOK = true
	}
	return n, err
}

func (w *s3Writer) Commit(ctx context.Context) error {
	if err := w.pw.Close(); err != nil {
		return fmt.Errorf("storage: close pipe: %w", err)
	}
	if err := <-w.done; err != nil {
		return fmt.Errorf("storage: upload temp object %q: %w", w.tmpKey, err)
	}
	_, err := w.s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: w.s.bucket, Object: w.finKey},
		minio.CopySrcOptions{Bucket: w.s.bucket, Object: w.tmpKey},
	)
	if err != nil {
		return fmt.Errorf("storage: publish %q -> %q: %w", w.tmpKey, w.finKey, err)
	}
	_ = w.s.client.RemoveObject(ctx, w.s.bucket, w.tmpKey, minio.RemoveObjectOptions{})
	return nil
}

func (w *s3Writer) Abort(ctx context.Context) error {
	w.pw.CloseWithError(fmt.Errorf("aborted"))
	<-w.done
	return w.s.client.RemoveObject(ctx, w.s.bucket, w.tmpKey, minio.RemoveObjectOptions{})
}

func (s *S3) OpenWrite(ctx context.Context, key string) (Writer, error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	tmpKey := TempKey(key)
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, tmpKey, pr, -1, minio.PutObjectOptions{})
		pr.CloseWithError(err)
		done <- err
	}()
	return &s3Writer{s: s, tmpKey: tmpKey, finKey: key, pw: pw, done: done}, nil
}

func (s *S3) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	// Force an early NotFound: GetObject doesn't error until first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (s *S3) ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	size, err := s.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if start < 0 || endInclusive < start || endInclusive >= size {
		return nil, ErrRangeInvalid
	}
	if err := opts.SetRange(start, endInclusive); err != nil {
		return nil, fmt.Errorf("storage: set range: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (s *S3) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, mapMinioErr(err)
	}
	return info.Size, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

func (s *S3) Move(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.bucket, Object: src},
	)
	if err != nil {
		return mapMinioErr(err)
	}
	return s.Delete(ctx, src)
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return ErrNotFound
	}
	return fmt.Errorf("storage: %w", err)
}
