// Package objectstore streams binary assets to and from an S3-compatible
// bucket. Every method either fails outright or leaves the object fully
// readable under its name — callers never observe a partial write.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"videopipe/internal/apierrors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ObjectInfo is the metadata returned by Stat and List.
type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
	MediaType    string
}

// Store is the streamed object storage contract (C1). Implementations must
// never buffer an entire object in memory.
type Store interface {
	PutStream(ctx context.Context, name string, r io.Reader, size int64, mediaType string) error
	GetStream(ctx context.Context, name string) (io.ReadCloser, error)
	GetRange(ctx context.Context, name string, start, endInclusive int64) ([]byte, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	PresignedGet(ctx context.Context, name string, ttl time.Duration) (string, error)
}

// S3Store backs Store with an S3-compatible bucket (AWS S3, R2, MinIO).
// Large writes and reads flow through manager.Uploader/Downloader's
// fixed-size part buffers rather than a single in-memory slice.
type S3Store struct {
	client  *s3.Client
	bucket  string
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// Config describes how to reach the backing bucket.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// New constructs an S3Store from Config.
func New(cfg Config) *S3Store {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)
	return &S3Store{
		client:     client,
		bucket:     cfg.Bucket,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}
}

// PutStream uploads r to name. On failure the partially-written key is
// removed before the error is returned, so a failed put never leaves a
// truncated object visible under name.
func (s *S3Store) PutStream(ctx context.Context, name string, r io.Reader, size int64, mediaType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          r,
		ContentType:   aws.String(mediaType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(name),
		})
		return wrapErr(err, "put %s", name)
	}
	return nil
}

// GetStream returns a reader over the full object. Callers must Close it.
func (s *S3Store) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, wrapErr(err, "get %s", name)
	}
	return out.Body, nil
}

// GetRange returns exactly the bytes in [start, endInclusive] of the named
// object, issuing a ranged GetObject so the rest of the object is never
// transferred.
func (s *S3Store) GetRange(ctx context.Context, name string, start, endInclusive int64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, endInclusive)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return nil, wrapErr(err, "get range %s", name)
	}
	defer out.Body.Close()

	want := endInclusive - start + 1
	buf := make([]byte, 0, want)
	lr := io.LimitReader(out.Body, want)
	for {
		chunk := make([]byte, 32*1024)
		n, rerr := lr.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, wrapErr(rerr, "read range body %s", name)
		}
	}
	return buf, nil
}

// Delete removes the named object. Deleting an absent key is not an error.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return wrapErr(err, "delete %s", name)
	}
	return nil
}

// Exists reports whether name is present.
func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, wrapErr(err, "head %s", name)
	}
	return true, nil
}

// Stat returns size/media-type/last-modified for name.
func (s *S3Store) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return ObjectInfo{}, wrapErr(err, "stat %s", name)
	}
	info := ObjectInfo{Name: name}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	if out.ContentType != nil {
		info.MediaType = *out.ContentType
	}
	return info, nil
}

// List enumerates every object under prefix. Pagination is handled
// internally; callers receive the fully-drained slice.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapErr(err, "list %s", prefix)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Name: aws.ToString(obj.Key)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// PresignedGet returns a short-lived URL granting direct read access.
func (s *S3Store) PresignedGet(ctx context.Context, name string, ttl time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapErr(err, "presign %s", name)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func wrapErr(err error, format string, args ...any) error {
	return apierrors.NewTransient(err, format, args...)
}
