package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	apperrors "assetsync/internal/errors"
)

// S3Config configures access to an S3-compatible object store.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// s3API is the part of *s3.Client the transport calls.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Transport serves s3://bucket/key URLs with ranged GetObject calls.
type S3Transport struct {
	client s3API
}

// NewS3Transport builds a client from the default AWS credential chain,
// overridden by any static keys or endpoint in cfg.
func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, apperrors.ConfigError(apperrors.CodeConfigGeneric, "failed to load aws config", err).
			WithModule(module).WithOperation("NewS3Transport")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Transport{client: client}, nil
}

// Fetch implements Transport.
func (t *S3Transport) Fetch(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := t.client.GetObject(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var status interface{ HTTPStatusCode() int }
		if errors.As(err, &status) {
			code := status.HTTPStatusCode()
			switch {
			case code == http.StatusRequestedRangeNotSatisfiable && offset > 0:
				return emptyBody(), nil
			case code >= 400 && code < 500:
				return nil, apperrors.TransferError(apperrors.CodeTransferHTTPStatus,
					fmt.Sprintf("unexpected HTTP status %d", code), err).
					WithModule(module).WithOperation("Fetch").
					WithFields(apperrors.Metadata{"url": rawURL, "status": code})
			}
		}
		return nil, apperrors.TransferError(apperrors.CodeTransferConnectionFailed, "get object failed", err).
			WithModule(module).WithOperation("Fetch").WithField("url", rawURL)
	}
	return out.Body, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, perr := url.Parse(rawURL)
	if perr != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", apperrors.ConfigError(apperrors.CodeConfigGeneric, "invalid s3 url", perr).
			WithModule(module).WithField("url", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", apperrors.ConfigError(apperrors.CodeConfigGeneric, "s3 url has no object key", nil).
			WithModule(module).WithField("url", rawURL)
	}
	return u.Host, key, nil
}
