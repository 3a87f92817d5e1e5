// Package s3 implements a journal Sink on an S3-compatible backend. Each
// Append writes one object holding the JSON-encoded record batch; List reads
// every batch back and merges by sequence number.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"trackcore/internal/journal/core"
)

const batchPrefix = "batches/"

// Sink implements core.Sink against a single bucket. Batch objects are keyed
// by the first sequence number in the batch, zero-padded so lexical key order
// matches append order.
type Sink struct {
	client *awss3.Client
	bucket string
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; if set enables custom endpoint (e.g. MinIO)
	PathStyle bool
}

// Environment variables:
//   TRACKCORE_JOURNAL_DRIVER=s3
//   TRACKCORE_JOURNAL_S3_BUCKET=<bucket> (required)
//   TRACKCORE_JOURNAL_S3_REGION=<region> (default us-east-1)
//   TRACKCORE_JOURNAL_S3_ENDPOINT=<url> (optional, for MinIO)
//   TRACKCORE_JOURNAL_S3_PATH_STYLE=true|false (default false)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates an S3 journal sink from Config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Sink{client: client, bucket: cfg.Bucket}, nil
}

// OpenFromEnv constructs an S3 sink from process environment.
func OpenFromEnv(ctx context.Context) (*Sink, error) {
	bucket := os.Getenv("TRACKCORE_JOURNAL_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("TRACKCORE_JOURNAL_S3_BUCKET required for s3 driver")
	}
	cfg := Config{
		Bucket:    bucket,
		Region:    os.Getenv("TRACKCORE_JOURNAL_S3_REGION"),
		Endpoint:  os.Getenv("TRACKCORE_JOURNAL_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("TRACKCORE_JOURNAL_S3_PATH_STYLE"), "true"),
	}
	return New(ctx, cfg)
}

func (s *Sink) Driver() core.Driver { return core.DriverS3 }

// Append stores the batch as a single JSON object.
func (s *Sink) Append(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d.json", batchPrefix, records[0].Seq)
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(payload),
		ContentType: &contentType,
	})
	return err
}

// List fetches every batch object and returns the merged records ordered by
// sequence number.
func (s *Sink) List(ctx context.Context) ([]core.Record, error) {
	var keys []string
	var token *string
	prefix := batchPrefix
	for {
		out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	var records []core.Record
	for _, key := range keys {
		key := key
		out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{Bucket: &s.bucket, Key: &key})
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(out.Body)
		_ = out.Body.Close()
		if err != nil {
			return nil, err
		}
		var batch []core.Record
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("journal batch %s: %w", key, err)
		}
		records = append(records, batch...)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}
