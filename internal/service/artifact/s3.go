package artifact

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/pkg/circuitbreaker"
)

// Mirror keeps an off-site copy of each rendered report.
type Mirror interface {
	Upload(ctx context.Context, localPath string, document []byte) error
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Mirror struct {
	client putObjectAPI
	bucket string
	prefix string
	cb     *circuitbreaker.CircuitBreaker
}

func NewS3Mirror(ctx context.Context, cfg config.S3Config) (Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newS3Mirror(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3Mirror(client putObjectAPI, cfg config.S3Config) *s3Mirror {
	return &s3Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "s3-mirror",
			MaxFailures: 3,
		}),
	}
}

// Key maps a local artifact path to its object key.
func (m *s3Mirror) Key(localPath string) string {
	return m.prefix + filepath.Base(localPath)
}

func (m *s3Mirror) Upload(ctx context.Context, localPath string, document []byte) error {
	key := m.Key(localPath)
	return m.cb.Execute(func() error {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(m.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(document),
			ContentType: aws.String("application/pdf"),
			ACL:         types.ObjectCannedACLPrivate,
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		return nil
	})
}
