// Package archive stores raw response bodies in S3 so every parsed
// statistic can be traced back to the exact bytes the upstream served.
// Archiving is best effort; a batch never fails because the archive is
// down.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cooneycw/nhl-api-sub002/config"
	"github.com/cooneycw/nhl-api-sub002/internal/download"
	"github.com/cooneycw/nhl-api-sub002/observability"
	"github.com/cooneycw/nhl-api-sub002/observability/types"
)

// Archiver persists raw fetched content.
type Archiver interface {
	Archive(ctx context.Context, result *download.Result) error
}

// S3Archiver writes one object per fetched item under
// {source}/{season}/{itemKey}.
type S3Archiver struct {
	s3Client *s3.Client
	bucket   string
	logger   types.Logger
	metrics  types.Metrics
}

// NewS3Archiver builds the archiver from configuration and verifies the
// bucket is reachable.
func NewS3Archiver(cfg *config.ArchiveConfig, logger types.Logger, metrics types.Metrics) (*S3Archiver, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}

	awsCfg, err := buildAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	a := &S3Archiver{
		s3Client: client,
		bucket:   cfg.Bucket,
		logger:   logger,
		metrics:  metrics,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to verify bucket %q: %w", cfg.Bucket, err)
	}

	return a, nil
}

// Archive stores the result's raw content. Results with no raw content
// are a no-op.
func (a *S3Archiver) Archive(ctx context.Context, result *download.Result) error {
	if len(result.RawContent) == 0 {
		return nil
	}

	key := objectKey(result)
	start := time.Now()
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(result.RawContent),
		ContentType: aws.String(contentTypeOf(result.RawContent)),
	})
	a.metrics.RecordDuration("archive_put", time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordError("archive_put", "put_failed")
		a.logger.Error(ctx, "failed to archive raw content", err, types.Fields{
			"bucket": a.bucket,
			"key":    key,
		})
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}

	a.metrics.RecordSuccess("archive_put")
	a.metrics.RecordFileSize("archive_put", int64(len(result.RawContent)))
	a.logger.Debug(ctx, "archived raw content", types.Fields{
		"bucket": a.bucket,
		"key":    key,
		"size":   len(result.RawContent),
	})
	return nil
}

// objectKey lays objects out by source and season so a season's raw feed
// can be re-listed with a prefix scan.
func objectKey(result *download.Result) string {
	season := result.SeasonID
	if season == "" {
		season = "none"
	}
	return fmt.Sprintf("%s/%s/%s", result.Source, season, result.ItemID)
}

func contentTypeOf(content []byte) string {
	return http.DetectContentType(content)
}

func buildAWSConfig(cfg *config.ArchiveConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	return awsconfig.LoadDefaultConfig(context.Background(), optFns...)
}
