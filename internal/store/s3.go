package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Options configures the connection to a bucket.
type S3Options struct {
	Bucket     string
	Region     string
	Endpoint   string // custom endpoint for S3-compatible services
	PathStyle  bool
	MaxRetries int

	// Assume-role parameters; RoleARN empty means the default credential chain.
	RoleARN         string
	RoleSessionName string
	RoleExternalID  string
}

// S3Store implements Store on top of a single S3 bucket.
type S3Store struct {
	client S3API
	bucket string
	logger *slog.Logger
}

// NewS3Store loads AWS configuration from the default chain, optionally
// assumes a role, and returns a store bound to opts.Bucket.
func NewS3Store(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, &Error{Op: "connect", Err: errors.New("bucket name cannot be empty")}
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.MaxRetries > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(opts.MaxRetries))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &Error{Op: "connect", Bucket: opts.Bucket, Err: err}
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if opts.RoleARN != "" {
		sessionName := opts.RoleSessionName
		if sessionName == "" {
			sessionName = fmt.Sprintf("s3yum_%d", time.Now().Unix())
		}
		logger.Debug("assuming role", "role_arn", opts.RoleARN, "session_name", sessionName)
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), opts.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = sessionName
				if opts.RoleExternalID != "" {
					o.ExternalID = aws.String(opts.RoleExternalID)
				}
			})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	logger.Debug("connected to bucket", "bucket", opts.Bucket, "region", cfg.Region)
	return NewS3StoreWithClient(client, opts.Bucket, logger), nil
}

// NewS3StoreWithClient wraps an existing client, mainly for tests.
func NewS3StoreWithClient(client S3API, bucket string, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, logger: logger}
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrap("list", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: FormatTimestamp(aws.ToTime(obj.LastModified)),
				ETag:         NormalizeETag(aws.ToString(obj.ETag)),
			})
		}
	}
	return objects, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string, w io.Writer, progress ProgressFunc) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrap("get", key, err)
	}
	defer func() {
		_ = out.Body.Close()
	}()

	if _, err := io.Copy(w, newProgressReader(out.Body, aws.ToInt64(out.ContentLength), progress)); err != nil {
		return s.wrap("get", key, err)
	}
	return nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key, localPath string, progress ProgressFunc) error {
	f, err := os.Open(localPath)
	if err != nil {
		return s.wrap("put", key, err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return s.wrap("put", key, err)
	}

	var body io.Reader = f
	if progress != nil {
		body = &progressFile{File: f, progress: progress, total: info.Size()}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return s.wrap("put", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

func (s *S3Store) wrap(op, key string, err error) error {
	if sentinel := classify(err); sentinel != nil {
		err = fmt.Errorf("%w: %w", sentinel, err)
	}
	return &Error{Op: op, Bucket: s.bucket, Key: key, Err: err}
}

// classify maps AWS SDK errors onto the package sentinels.
func classify(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrObjectNotFound
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return ErrBucketNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		case "NoSuchBucket":
			return ErrBucketNotFound
		case "NoSuchKey", "NotFound":
			return ErrObjectNotFound
		}
	}
	return nil
}

// contentType sniffs the file, falling back to a generic binary type.
func contentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return defaultContentType
	}
	return mt.String()
}

// progressFile keeps the body seekable so the SDK can sign and retry it.
type progressFile struct {
	*os.File
	progress ProgressFunc
	total    int64
	read     int64
}

func (p *progressFile) Read(b []byte) (int, error) {
	n, err := p.File.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.progress(p.read, p.total)
	}
	return n, err
}

func (p *progressFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.File.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}
