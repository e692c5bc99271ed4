// Package archive 结算报告归档到 S3（或 S3 兼容存储）
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"PoolSettle/internal/config"
	"PoolSettle/internal/interfaces"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver 实现 interfaces.SettlementArchiver
type S3Archiver struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *logrus.Logger
	now    func() time.Time
}

// NewS3Archiver 按配置创建 S3 客户端；配置了 endpoint 时使用 path-style 访问
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig, logger *logrus.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Archiver(client putObjectAPI, bucket, prefix string, logger *logrus.Logger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger, now: time.Now}
}

// objectKey prefix/market-{id}/{unix}-{uuid 前 8 位}.json，同一市场多次归档不会互相覆盖
func (a *S3Archiver) objectKey(marketID uint64) string {
	name := fmt.Sprintf("%d-%s.json", a.now().UTC().Unix(), uuid.NewString()[:8])
	return path.Join(a.prefix, fmt.Sprintf("market-%d", marketID), name)
}

func (a *S3Archiver) Archive(ctx context.Context, report *interfaces.SettlementReport) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal report: %w", err)
	}
	key := a.objectKey(report.MarketID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	a.logger.WithFields(logrus.Fields{"market_id": report.MarketID, "key": key}).Info("结算报告已归档")
	return nil
}
