package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/technocreatives/artefacta/internal/core"
)

// ErrChecksumFailure is returned when the remote rejects an upload because
// the declared Content-MD5 didn't match what it received server-side.
var ErrChecksumFailure = fmt.Errorf("remote rejected upload: bad digest")

// Bucket describes an S3-compatible remote derived from an `s3://...` URL:
// the bucket name and an optional key prefix. Credentials and endpoint
// come from the ambient AWS_* environment, read by the SDK's default
// config chain.
type Bucket struct {
	Endpoint string
	Name     string
	Prefix   string
}

// ParseBucketURL parses `s3://bucket/prefix` into a Bucket. The endpoint is
// not part of the URL; it is taken from the AWS_ENDPOINT_URL environment
// variable (empty when unset).
func ParseBucketURL(raw string) (Bucket, error) {
	const schemePrefix = "s3://"
	if !strings.HasPrefix(raw, schemePrefix) {
		return Bucket{}, fmt.Errorf("remote store URL `%s` must start with `s3://`", raw)
	}
	rest := strings.TrimPrefix(raw, schemePrefix)
	parts := strings.SplitN(rest, "/", 2)
	bucket := Bucket{Name: parts[0]}
	if len(parts) == 2 {
		bucket.Prefix = parts[1]
	}
	bucket.Endpoint = os.Getenv("AWS_ENDPOINT_URL")
	return bucket, nil
}

// S3 is a core.Storage backed by an S3-compatible object store.
type S3 struct {
	client *s3.Client
	bucket Bucket
	logger *slog.Logger
}

// NewS3 builds an S3 storage over bucket, loading credentials and region
// from the ambient AWS_* environment via the SDK's default config chain.
func NewS3(ctx context.Context, bucket Bucket, logger *slog.Logger) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if bucket.Endpoint != "" {
			o.BaseEndpoint = &bucket.Endpoint
			o.UsePathStyle = true
		}
	})
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(nil, nil))
	}
	return &S3{client: client, bucket: bucket, logger: logger}, nil
}

func (s *S3) key(relativePath string) string {
	return keyUnder(s.bucket.Prefix, relativePath)
}

// ListFiles lists every object under the bucket's key prefix. Pagination is
// not implemented (a documented open question): if the first page is
// truncated, a warning is logged and only that page is returned.
func (s *S3) ListFiles(ctx context.Context) ([]core.Entry, error) {
	prefix := s.bucket.Prefix
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &s.bucket.Name,
		Prefix: &prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under `s3://%s/%s`: %w", s.bucket.Name, prefix, err)
	}
	if out.IsTruncated != nil && *out.IsTruncated {
		s.logger.Warn("remote listing was truncated, pagination is not implemented", "bucket", s.bucket.Name, "prefix", prefix)
	}

	entries := make([]core.Entry, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		entries = append(entries, core.Entry{
			Storage: core.StorageRemote,
			Path:    strings.TrimPrefix(*obj.Key, trimSlashes(prefix)+"/"),
			Size:    size,
		})
	}
	return entries, nil
}

// GetFile fetches relativePath fully into memory, validating a
// non-multipart ETag against the received bytes' MD5 when present.
func (s *S3) GetFile(ctx context.Context, relativePath string, progress core.ProgressFunc) (core.File, error) {
	key := s.key(relativePath)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket.Name,
		Key:    &key,
	})
	if err != nil {
		return core.File{}, fmt.Errorf("get object `s3://%s/%s`: %w", s.bucket.Name, key, err)
	}
	defer resp.Body.Close()

	var total int64
	if resp.ContentLength != nil {
		total = *resp.ContentLength
	}

	data, err := readAllWithProgress(resp.Body, total, progress)
	if err != nil {
		return core.File{}, fmt.Errorf("read object `s3://%s/%s`: %w", s.bucket.Name, key, err)
	}

	if resp.ETag != nil {
		etag := strings.Trim(*resp.ETag, `"`)
		if strings.Contains(etag, "-") {
			s.logger.Debug("skipping checksum validation for multipart object", "key", key, "etag", etag)
		} else {
			sum := md5.Sum(data)
			if fmt.Sprintf("%x", sum) != etag {
				return core.File{}, fmt.Errorf("%w: object `%s` ETag `%s` does not match received content", core.ErrChecksumMismatch, key, etag)
			}
		}
	}

	return core.File{
		Entry: core.Entry{Storage: core.StorageRemote, Path: relativePath, Size: int64(len(data))},
		Bytes: data,
	}, nil
}

// AddFile uploads file's payload to target, setting Content-MD5 so the
// server can reject a corrupted upload itself.
func (s *S3) AddFile(ctx context.Context, file core.File, target string, progress core.ProgressFunc) (core.Entry, error) {
	var payload []byte
	var err error
	if file.IsInline() {
		payload = file.Bytes
	} else {
		payload, err = os.ReadFile(file.InPath)
		if err != nil {
			return core.Entry{}, fmt.Errorf("read `%s` for upload: %w", file.InPath, err)
		}
	}

	sum := md5.Sum(payload)
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])
	key := s.key(target)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:     &s.bucket.Name,
		Key:        &key,
		Body:       bytes.NewReader(payload),
		ContentMD5: &contentMD5,
	})
	if err != nil {
		if strings.Contains(err.Error(), "BadDigest") {
			return core.Entry{}, fmt.Errorf("%w: %s", ErrChecksumFailure, err)
		}
		return core.Entry{}, fmt.Errorf("put object `s3://%s/%s`: %w", s.bucket.Name, key, err)
	}

	if progress != nil {
		progress(int64(len(payload)), int64(len(payload)))
	}
	return core.Entry{Storage: core.StorageRemote, Path: target, Size: int64(len(payload))}, nil
}

// IsLocal always reports false for S3.
func (s *S3) IsLocal() bool { return false }

// LocalPath is not applicable to S3 storage.
func (s *S3) LocalPath() (string, bool) { return "", false }

func readAllWithProgress(r io.Reader, total int64, progress core.ProgressFunc) ([]byte, error) {
	if progress == nil {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	chunk := make([]byte, 256*1024)
	var done int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			done += int64(n)
			progress(done, total)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
