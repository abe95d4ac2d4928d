package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/verseforge/verseforge/pkg/types"
)

// S3Store implements Store against any S3-compatible endpoint (AWS S3,
// Cloudflare R2, MinIO). A custom endpoint switches the client to
// path-style addressing.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a blob store for the given bucket. Credentials come
// from the standard AWS environment/credential chain.
func NewS3Store(ctx context.Context, bucket, endpoint, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, types.Wrap(types.CodeStorageReadFailed, err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return types.Wrap(types.CodeStorageWriteFailed, err, "put %s", key)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, types.E(types.CodeNotFound, "blob %s not found", key)
		}
		return nil, types.Wrap(types.CodeStorageReadFailed, err, "get %s", key)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, types.Wrap(types.CodeStorageReadFailed, err, "read %s", key)
	}

	obj := &Object{
		Key:         key,
		Body:        body,
		ContentType: aws.ToString(out.ContentType),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		Metadata:    out.Metadata,
		Uploaded:    aws.ToTime(out.LastModified),
		Size:        int64(len(body)),
	}
	return obj, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	// S3 deletes are idempotent: deleting a missing key succeeds
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return types.Wrap(types.CodeStorageWriteFailed, err, "delete %s", key)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Info, error) {
	var infos []Info

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, types.Wrap(types.CodeStorageReadFailed, err, "list %s", prefix)
		}
		for _, obj := range page.Contents {
			infos = append(infos, Info{
				Key:      aws.ToString(obj.Key),
				Size:     aws.ToInt64(obj.Size),
				Uploaded: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}
