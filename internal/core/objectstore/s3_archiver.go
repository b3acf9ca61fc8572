package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/markdave123-py/Procura/internal/config"
	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/logger"
)

// S3Archiver stores processed-result payloads in object storage under
// processed/<noticeID>/<filename>.json. Best effort, like indexing.
type S3Archiver struct {
	client *s3.Client
	region string
	bucket string
}

var _ core.Archiver = (*S3Archiver)(nil)

func NewS3Archiver(ctx context.Context, cfg *cfg.Config) (*S3Archiver, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.AwsRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	logger.Info(ctx, "connected to AWS S3", "bucket", cfg.BucketName)

	return &S3Archiver{
		client: client,
		region: cfg.AwsRegion,
		bucket: cfg.BucketName,
	}, nil
}

// Archive uploads one processed-result payload.
func (a *S3Archiver) Archive(ctx context.Context, noticeID, filename string, payload []byte) error {
	key := path.Join("processed", noticeID, filename+".json")

	uploader := manager.NewUploader(a.client)

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
