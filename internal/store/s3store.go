package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/runbookctl/engine/internal/schema"
	"github.com/runbookctl/engine/pkg/orcherrors"
)

// S3Store is the optional object-storage-backed Store, for deployments
// that want run state shared across machines rather than pinned to
// one host's local disk. It satisfies the same Store contract as
// FSStore; S3's PutObject is already whole-object atomic, so no
// temp-then-rename dance is needed here.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store using the default AWS credential chain
// (environment, shared config, instance role). prefix namespaces keys
// within bucket, e.g. "compliance-runs/".
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func (s *S3Store) objectKey(runID, key string) string {
	return path.Join(s.prefix, "runs", runID, "artifacts", key+artifactSuffix)
}

func (s *S3Store) Save(runID, key string, msg schema.Message) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3Store) Get(runID, key string) (schema.Message, error) {
	if err := ValidateKey(key); err != nil {
		return schema.Message{}, err
	}
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return schema.Message{}, orcherrors.NewNotFoundError(runID, key)
		}
		return schema.Message{}, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return schema.Message{}, err
	}
	var msg schema.Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return schema.Message{}, err
	}
	return msg, nil
}

func (s *S3Store) Exists(runID, key string) bool {
	if err := ValidateKey(key); err != nil {
		return false
	}
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
	})
	return err == nil
}

func (s *S3Store) Delete(runID, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(runID, key)),
	})
	return err
}

func (s *S3Store) ListKeys(runID, prefix string) ([]string, error) {
	runPrefix := path.Join(s.prefix, "runs", runID, "artifacts") + "/"
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(runPrefix + prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), runPrefix)
			if trimmed, ok := strings.CutSuffix(name, artifactSuffix); ok {
				keys = append(keys, trimmed)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Store) Clear(runID string) error {
	keys, err := s.ListKeys(runID, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(runID, key); err != nil {
			return err
		}
	}
	return nil
}
