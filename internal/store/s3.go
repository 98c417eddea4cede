package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "chainflow/config"
	"chainflow/logger"
)

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps each table as one Parquet object of non-empty cells.
type S3Store struct {
	client      objectAPI
	bucket      string
	prefix      string
	compression string

	mu  sync.Mutex
	log *logger.Entry
}

// NewS3Store builds an S3 client from the storage configuration.
func NewS3Store(ctx context.Context, cfg appconfig.S3Config) (*S3Store, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client objectAPI, cfg appconfig.S3Config) *S3Store {
	return &S3Store{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		compression: cfg.Compression,
		log:         logger.GetLogger().WithComponent("s3_store"),
	}
}

func (s *S3Store) key(table string) string {
	return path.Join(s.prefix, table+".parquet")
}

func (s *S3Store) get(ctx context.Context, table string) ([][]string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(table)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", s.key(table), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key(table), err)
	}
	return decodeGrid(data)
}

func (s *S3Store) put(ctx context.Context, table string, grid [][]string) error {
	data, err := encodeGrid(grid, s.compression)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(table)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.key(table), err)
	}
	s.log.WithFields(logger.Fields{"key": s.key(table), "bytes": len(data)}).Debug("uploaded table")
	return nil
}

func (s *S3Store) ReadAll(ctx context.Context, table string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, table)
}

func (s *S3Store) Clear(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, table, nil)
}

func (s *S3Store) WriteRange(ctx context.Context, table string, row, col int, values [][]string) error {
	if err := checkAnchor(row, col); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, err := s.get(ctx, table)
	if err != nil && !errors.Is(err, ErrTableNotFound) {
		return err
	}
	return s.put(ctx, table, applyRange(grid, row, col, values))
}

func (s *S3Store) ReadCell(ctx context.Context, table string, ref string) (string, error) {
	row, col, err := ParseA1(ref)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, err := s.get(ctx, table)
	if err != nil {
		return "", err
	}
	return cellAt(grid, row, col), nil
}
