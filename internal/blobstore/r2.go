package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

const (
	metaFilename  = "filename"
	metaOwner     = "owner"
	metaExpiresAt = "expires-at"
	metaTTLDays   = "ttl-days"
)

type R2Options struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	// Endpoint overrides the account endpoint (tests, other S3-compatible stores).
	Endpoint string
	Logger   *slog.Logger
}

// R2Store keeps objects in an S3-compatible bucket. Writes are synchronous,
// so every existing object reports a completed status. Retention is enforced
// on read from the expires-at metadata; bucket lifecycle rules reclaim space.
type R2Store struct {
	client *s3.Client
	bucket string
	now    func() time.Time
	logger *slog.Logger
}

var _ Store = (*R2Store)(nil)

// NewR2Store initializes the R2 client using static credentials and custom endpoint.
func NewR2Store(opts R2Options) (*R2Store, error) {
	if opts.BucketName == "" {
		return nil, errors.New("blobstore: R2 bucket name is empty")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		if opts.AccountID == "" {
			return nil, errors.New("blobstore: R2 account id is empty")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Region:      region,
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	logger = logger.With("component", "blobstore-r2")
	logger.Info("Successfully initialized R2 client", "endpoint", endpoint, "bucket", opts.BucketName)

	return &R2Store{
		client: client,
		bucket: opts.BucketName,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (s *R2Store) Upload(ctx context.Context, data []byte, opts UploadOptions) (UploadResult, error) {
	id := uuid.NewString()
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	meta := map[string]string{
		metaFilename: url.QueryEscape(opts.Filename),
	}
	if opts.Owner != "" {
		meta[metaOwner] = url.QueryEscape(opts.Owner)
	}
	if opts.TTLDays > 0 {
		expires := s.now().UTC().Add(time.Duration(opts.TTLDays * float64(24*time.Hour)))
		meta[metaExpiresAt] = expires.Format(time.RFC3339)
		meta[metaTTLDays] = FormatTTLDays(opts.TTLDays)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(id),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      meta,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("blobstore: put object: %w", err)
	}

	exists, err := s.VerifyObjectExists(ctx, id)
	if err != nil {
		return UploadResult{}, fmt.Errorf("blobstore: verify object %s: %w", id, err)
	}
	if !exists {
		s.logger.Error("Object missing after upload", "id", id, "bucket", s.bucket)
		return UploadResult{}, fmt.Errorf("blobstore: object %s not visible after upload", id)
	}
	return UploadResult{FileID: id, Message: "stored"}, nil
}

func (s *R2Store) Info(ctx context.Context, id string) (FileInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return FileInfo{}, mapS3Error("info", err)
	}

	info := FileInfo{
		FileID:      id,
		ContentType: aws.ToString(out.ContentType),
		FileSize:    aws.ToInt64(out.ContentLength),
		ChunkCount:  1,
		Checksum:    aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		info.CreatedAt = out.LastModified.UTC()
	}
	if v, ok := out.Metadata[metaFilename]; ok {
		info.OriginalFilename, _ = url.QueryUnescape(v)
	}
	if v, ok := out.Metadata[metaOwner]; ok {
		info.Owner, _ = url.QueryUnescape(v)
	}
	if v, ok := out.Metadata[metaExpiresAt]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			info.ExpiresAt = &t
			if s.now().After(t) {
				return FileInfo{}, ErrExpired
			}
		}
	}
	return info, nil
}

func (s *R2Store) Download(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.Info(ctx, id); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, mapS3Error("download", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read object %s: %w", id, err)
	}
	return data, nil
}

func (s *R2Store) Status(ctx context.Context, id string) (Status, error) {
	info, err := s.Info(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Status:    StatusCompleted,
		Completed: true,
		Progress: Progress{
			ChunksReceived: 1,
			ChunksUploaded: 1,
			TotalChunks:    1,
			Percentage:     100,
		},
		FileInfo: &info,
	}, nil
}

func (s *R2Store) ByOwner(context.Context, string) ([]FileInfo, error) {
	return nil, ErrUnsupported
}

func (s *R2Store) Quota(context.Context) (Quota, error) {
	return Quota{}, ErrUnsupported
}

// VerifyObjectExists checks if a given object key exists in the bucket.
// Upload calls it before reporting an id as stored.
func (s *R2Store) VerifyObjectExists(ctx context.Context, id string) (bool, error) {
	_, err := s.Info(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func mapS3Error(op string, err error) error {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		}
	}
	return fmt.Errorf("blobstore: %s: %w", op, err)
}
