// Package s3index reads compact index files mirrored into an S3 bucket.
//
// A remote written as s3://bucket/prefix is served from objects
// <prefix>/info/<gem>, laid out exactly like an HTTP gem server. Mirrors of
// this kind are common in air-gapped CI where only object storage is
// reachable.
package s3index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/matzehuels/gemlock/pkg/cache"
	"github.com/matzehuels/gemlock/pkg/httputil"
	"github.com/matzehuels/gemlock/pkg/integrations"
)

// API is the subset of the S3 client used here.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client fetches info files from one bucket prefix.
type Client struct {
	*integrations.Client
	api    API
	bucket string
	prefix string
	remote string
}

// NewClient creates a client for remote (s3://bucket/prefix) using api.
func NewClient(api API, backend cache.Cache, remote string, ttl time.Duration, opts ...integrations.ClientOption) (*Client, error) {
	bucket, prefix, err := ParseRemote(remote)
	if err != nil {
		return nil, err
	}
	normalized := integrations.NormalizeRemote(remote)
	return &Client{
		Client: integrations.NewClient(backend, "s3:"+normalized, ttl, nil, opts...),
		api:    api,
		bucket: bucket,
		prefix: prefix,
		remote: normalized,
	}, nil
}

// ParseRemote splits s3://bucket/prefix.
func ParseRemote(remote string) (bucket, prefix string, err error) {
	u, err := url.Parse(remote)
	if err != nil {
		return "", "", fmt.Errorf("s3index: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("s3index: %q is not an s3://bucket/prefix remote", remote)
	}
	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// NewAPIFromEnv builds an S3 client from the standard AWS_* environment
// variables. GEMLOCK_S3_ENDPOINT points it at an S3-compatible store such as
// MinIO, using path-style addressing.
func NewAPIFromEnv() *s3.Client {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, errors.New("s3index: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "Environment",
		}, nil
	})

	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if endpoint := os.Getenv("GEMLOCK_S3_ENDPOINT"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// Remote returns the normalized s3:// remote.
func (c *Client) Remote() string { return c.remote }

// Info returns every version of gem in the mirror.
func (c *Client) Info(ctx context.Context, gem string, policy integrations.Policy) ([]integrations.GemVersion, error) {
	body, err := c.Cached(ctx, "info/"+gem, policy, func(ctx context.Context) ([]byte, error) {
		return c.getObject(ctx, c.prefix+"info/"+gem)
	})
	if err != nil {
		return nil, err
	}
	versions, err := integrations.ParseInfo(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("s3index: %s on %s: %w", gem, c.remote, err)
	}
	return versions, nil
}

func (c *Client) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", integrations.ErrNotFound, c.bucket, key)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", integrations.ErrNetwork, err))
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Artifact downloads a packaged gem from <prefix>/gems/<file>.
func (c *Client) Artifact(ctx context.Context, file string) ([]byte, error) {
	var data []byte
	err := httputil.DefaultBackoff.Do(ctx, func(int) error {
		var err error
		data, err = c.getObject(ctx, c.prefix+"gems/"+file)
		return err
	})
	return data, err
}
