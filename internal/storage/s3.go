package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fathima-sithara/tinytalk/internal/utils"
)

type S3Options struct {
	Region     string
	Bucket     string
	Endpoint   string // optional, for S3-compatible services such as MinIO
	PublicRead bool
	PresignTTL time.Duration
}

// S3Store keeps objects in a bucket keyed by logical pathname. URLs are
// public object URLs when the bucket is public-read, presigned GETs otherwise.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	presigner  *s3.PresignClient
	bucket     string
	region     string
	endpoint   string
	publicRead bool
	presignTTL time.Duration
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		presigner:  s3.NewPresignClient(client),
		bucket:     opts.Bucket,
		region:     opts.Region,
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		publicRead: opts.PublicRead,
		presignTTL: ttl,
	}, nil
}

func (s *S3Store) url(ctx context.Context, key string) (string, error) {
	if s.publicRead {
		escaped := (&url.URL{Path: key}).EscapedPath()
		if s.endpoint != "" {
			return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped), nil
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, utils.Storage("list "+prefix, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			u, err := s.url(ctx, key)
			if err != nil {
				return nil, utils.Storage("sign "+key, err)
			}
			out = append(out, Object{
				Path:       key,
				Locator:    key,
				URL:        u,
				Size:       aws.ToInt64(o.Size),
				ModifiedAt: aws.ToTime(o.LastModified),
			})
		}
	}
	return out, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Object{}, utils.Storage("put "+key, err)
	}
	u, err := s.url(ctx, key)
	if err != nil {
		return Object{}, utils.Storage("sign "+key, err)
	}
	return Object{
		Path:       key,
		Locator:    key,
		URL:        u,
		Size:       int64(len(data)),
		ModifiedAt: time.Now(),
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, locator string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return utils.Storage("delete "+locator, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("get %s: %w", key, utils.ErrNotFound)
		}
		return nil, utils.Storage("get "+key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, utils.Storage("get "+key, err)
	}
	return b, nil
}
