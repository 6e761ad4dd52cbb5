// Package storage keeps listing images and avatars in an S3-compatible
// bucket (AWS, R2 or MinIO).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/iliyamo/secondhand-market/internal/config"
)

// Image content types accepted for upload, with the key extension used.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// deleteBatch is the S3 limit on keys per DeleteObjects call.
const deleteBatch = 1000

// S3Store implements the service FileStore on an S3 bucket.
type S3Store struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	endpoint  string
	publicURL string
	ttl       time.Duration
	maxBytes  int64
}

// NewS3Store builds a client from cfg.  No request is made until the
// store is used.
func NewS3Store(cfg config.StorageConfig) *S3Store {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)
	return &S3Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		ttl:       cfg.UploadTTL,
		maxBytes:  cfg.MaxUploadBytes,
	}
}

// ValidateUpload checks an upload's declared type and size and returns
// the key extension for it.
func ValidateUpload(contentType string, size, maxBytes int64) (string, error) {
	ext, ok := imageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedType
	}
	if size <= 0 || (maxBytes > 0 && size > maxBytes) {
		return "", ErrTooLarge
	}
	return ext, nil
}

// ImageKey returns a fresh object key under the seller's listing prefix.
func ImageKey(sellerID uint64, ext string) string {
	return fmt.Sprintf("listings/%d/%s%s", sellerID, uuid.NewString(), ext)
}

// MaxUploadBytes is the configured size limit.
func (s *S3Store) MaxUploadBytes() int64 { return s.maxBytes }

// PublicURL returns the URL an object is served from.
func (s *S3Store) PublicURL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	if s.endpoint != "" {
		return s.endpoint + "/" + s.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

// SignedUpload is a presigned PUT the client uploads to directly.
type SignedUpload struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
	ExpiresIn int    `json:"expires_in"`
}

// SignUpload presigns a PUT of key with the given content type.
func (s *S3Store) SignUpload(ctx context.Context, key, contentType string) (*SignedUpload, error) {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return nil, err
	}
	return &SignedUpload{Key: key, UploadURL: req.URL, FileURL: s.PublicURL(key), ExpiresIn: int(ttl.Seconds())}, nil
}

// Upload stores data under key.
func (s *S3Store) Upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(data),
	})
	return err
}

// Exists reports whether key is present.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Remove deletes the given keys.  Missing keys are not an error.
func (s *S3Store) Remove(ctx context.Context, paths []string) error {
	for start := 0; start < len(paths); start += deleteBatch {
		end := min(start+deleteBatch, len(paths))
		objs := make([]types.ObjectIdentifier, 0, end-start)
		for _, p := range paths[start:end] {
			objs = append(objs, types.ObjectIdentifier{Key: aws.String(p)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objs},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s: %s (%d failed)", aws.ToString(e.Key), aws.ToString(e.Message), len(out.Errors))
		}
	}
	return nil
}

// List returns every key under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range page.Contents {
			keys = append(keys, aws.ToString(o.Key))
		}
	}
	return keys, nil
}
