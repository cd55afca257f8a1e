package backends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/richardartoul/tieredcache/pkg/locking"
)

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// uploader is satisfied by *manager.Uploader.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config configures the S3 store.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, for S3-compatible services. Path
	// style addressing is used when set.
	Endpoint string
}

// S3 stores cache entries as objects under <prefix>/<namespace>/<key>.
type S3 struct {
	client   s3API
	uploader uploader
	bucket   string
	prefix   string
	locks    locking.Group
	logger   *slog.Logger
}

// NewS3 creates an S3 store using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(client, manager.NewUploader(client), cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3(client s3API, up uploader, bucket, prefix string, logger *slog.Logger) *S3 {
	return &S3{
		client:   client,
		uploader: up,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		locks:    locking.NewNoOpGroup(),
		logger:   logger,
	}
}

func (s *S3) namespacePrefix(ns Namespace) string {
	if s.prefix == "" {
		return string(ns) + "/"
	}
	return s.prefix + "/" + string(ns) + "/"
}

func (s *S3) objectKey(ns Namespace, key string) string {
	return s.namespacePrefix(ns) + key
}

// Lookup implements Store. Each candidate is one prefix listing.
func (s *S3) Lookup(ctx context.Context, ns Namespace, candidates []string) (string, error) {
	nsPrefix := s.namespacePrefix(ns)
	for _, c := range candidates {
		var entries []entry
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(nsPrefix + c),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return "", fmt.Errorf("failed to list objects with prefix %q: %w", c, err)
			}
			for _, obj := range page.Contents {
				e := entry{Key: strings.TrimPrefix(aws.ToString(obj.Key), nsPrefix)}
				if obj.LastModified != nil {
					e.PutTime = *obj.LastModified
				}
				entries = append(entries, e)
			}
		}
		if key, ok := matchCandidate(c, entries); ok {
			return key, nil
		}
	}
	return "", nil
}

// Restore implements Store.
func (s *S3) Restore(ctx context.Context, ns Namespace, key string, paths []string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	n, err := extractArchive(out.Body, paths)
	if err != nil {
		return err
	}
	s.logger.Debug("extracted cache entry", "namespace", ns, "key", key, "members", n)
	return nil
}

// Save streams the archive of paths to the uploader unless the object already
// exists. ChunkSize becomes the multipart part size when it is at least the
// S3 minimum. The existence check and the upload are not atomic, so
// concurrent savers of one key may both upload and the last one wins.
func (s *S3) Save(ctx context.Context, ns Namespace, key string, paths []string, opts SaveOptions) (string, error) {
	objectKey := s.objectKey(ns, key)
	var etag string
	err := s.locks.DoWithLock(objectKey, func() error {
		var err error
		etag, err = s.put(ctx, objectKey, key, paths, opts)
		return err
	})
	return etag, err
}

func (s *S3) put(ctx context.Context, objectKey, key string, paths []string, opts SaveOptions) (string, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err == nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return "", fmt.Errorf("failed to check for existing object: %w", err)
	}

	var body io.Reader
	if len(paths) == 0 {
		body = bytes.NewReader(nil)
	} else {
		pr, pw := io.Pipe()
		go func() {
			_, err := writeArchive(pw, paths)
			pw.CloseWithError(err)
		}()
		defer pr.Close()
		body = pr
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   body,
	}, func(u *manager.Uploader) {
		if opts.ChunkSize >= manager.MinUploadPartSize {
			u.PartSize = opts.ChunkSize
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return aws.ToString(out.ETag), nil
}

// Close implements Store.
func (s *S3) Close() error {
	return nil
}
