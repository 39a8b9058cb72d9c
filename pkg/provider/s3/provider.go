package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

// Provider implements provider.Provider for AWS S3 and S3-compatible storage.
//
// The SDK client is built on first use and rebuilt after SetProject, so a
// bad profile name surfaces as provider.ErrInvalidConfiguration from the
// next listing call rather than from New.
type Provider struct {
	mu      sync.Mutex
	cfg     Config
	client  *s3.Client
	maxKeys int
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Reconfigurer = (*Provider)(nil)
)

// New creates a new S3 provider with the given configuration.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg, maxKeys: clampMaxKeys(cfg.MaxKeys, DefaultMaxKeys)}, nil
}

// Scheme returns cloudpath.SchemeS3.
func (p *Provider) Scheme() cloudpath.Scheme {
	return cloudpath.SchemeS3
}

// Project returns the active AWS profile name, or "default".
func (p *Provider) Project() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Profile == "" {
		return "default"
	}
	return p.cfg.Profile
}

// SetProject switches the AWS shared-config profile.
func (p *Provider) SetProject(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Profile = name
	p.client = nil
}

func (p *Provider) getClient(ctx context.Context) (*s3.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	awsCfg, err := loadAWSConfig(ctx, p.cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: cloudpath.SchemeS3,
			Err:      classifyConfigError(err),
		}
	}

	// Build S3 client options
	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if p.cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if p.cfg.Endpoint != "" {
		endpoint := p.cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	p.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return p.client, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// classifyConfigError maps SDK configuration-loading failures. A missing
// shared-config profile is the S3 equivalent of an unknown GCP project.
func classifyConfigError(err error) error {
	var missing config.SharedConfigProfileNotExistError
	if errors.As(err, &missing) || strings.Contains(err.Error(), "failed to get shared config profile") {
		return fmt.Errorf("%w: %w", provider.ErrInvalidConfiguration, err)
	}
	return err
}

// ListBuckets enumerates the buckets owned by the caller.
func (p *Provider) ListBuckets(ctx context.Context) ([]cloudpath.Path, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	var out []cloudpath.Path
	paginator := s3.NewListBucketsPaginator(client, &s3.ListBucketsInput{})
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, p.wrapError("ListBuckets", "", "", err)
		}
		for _, b := range page.Buckets {
			out = append(out, cloudpath.Bucket(cloudpath.SchemeS3, aws.ToString(b.Name)))
		}
	}
	provider.SortByFullPrefix(out)
	return out, nil
}

// ListPrefix lists one level below loc using ListObjectsV2 with a "/" delimiter.
func (p *Provider) ListPrefix(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if loc.IsRoot() {
		return p.ListBuckets(ctx)
	}
	prefix := loc.FullPrefix()
	pages, err := p.listObjects(ctx, "ListPrefix", loc.BucketName(), prefix, provider.Delimiter)
	if err != nil {
		return nil, err
	}
	return provider.BuildListing(cloudpath.SchemeS3, loc.BucketName(), prefix, pages...)
}

// ListAllBlobs lists every object below loc without a delimiter.
func (p *Provider) ListAllBlobs(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if err := provider.RequireBucket("ListAllBlobs", loc); err != nil {
		return nil, err
	}
	pages, err := p.listObjects(ctx, "ListAllBlobs", loc.BucketName(), loc.FullPrefix(), "")
	if err != nil {
		return nil, err
	}
	var objects []provider.ObjectSummary
	for _, page := range pages {
		objects = append(objects, page.Objects...)
	}
	return provider.BuildBlobs(cloudpath.SchemeS3, loc.BucketName(), objects)
}

func (p *Provider) listObjects(ctx context.Context, op, bucket, prefix, delimiter string) ([]provider.DelimiterPage, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(p.maxKeys)),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	var pages []provider.DelimiterPage
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, p.wrapError(op, bucket, prefix, err)
		}

		page := provider.DelimiterPage{
			Objects:        make([]provider.ObjectSummary, 0, len(output.Contents)),
			CommonPrefixes: make([]string, 0, len(output.CommonPrefixes)),
		}
		for _, cp := range output.CommonPrefixes {
			page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
		}
		for _, obj := range output.Contents {
			page.Objects = append(page.Objects, provider.ObjectSummary{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// Download fetches one object to dest.
func (p *Provider) Download(ctx context.Context, blob cloudpath.Path, dest string) error {
	if err := provider.RequireBlob("Download", blob); err != nil {
		return err
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	key := blob.FullPrefix()
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(blob.BucketName()),
		Key:    aws.String(key),
	})
	if err != nil {
		return p.wrapError("Download", blob.BucketName(), key, err)
	}
	defer func() { _ = out.Body.Close() }()

	if err := provider.WriteFile(ctx, dest, out.Body); err != nil {
		return p.wrapError("Download", blob.BucketName(), key, err)
	}
	return nil
}

// DeleteBlob deletes one object. Objects that are already gone count as deleted.
func (p *Provider) DeleteBlob(ctx context.Context, blob cloudpath.Path) error {
	if err := provider.RequireBlob("DeleteBlob", blob); err != nil {
		return err
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	key := blob.FullPrefix()
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(blob.BucketName()), Key: aws.String(key)})
	if err != nil {
		wrapped := p.wrapError("DeleteBlob", blob.BucketName(), key, err)
		if provider.IsNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// Close releases any resources held by the provider.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (p *Provider) Close() error {
	return nil
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: cloudpath.SchemeS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	// Cancellation passes through untouched so callers can tell it apart.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "NoSuchKey", "NotFound":
			wrapped.Err = provider.ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			wrapped.Err = provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken", "InvalidClientTokenId":
			wrapped.Err = provider.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = provider.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = provider.ErrProviderUnavailable
		}
		return wrapped
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = provider.ErrNotFound
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.ErrBucketNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch") || strings.Contains(errMsg, "ExpiredToken"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		wrapped.Err = provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = provider.ErrProviderUnavailable
	}

	return wrapped
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses providerDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion determines the final region to use after SDK config loading.
//
// sdkRegion already incorporates an explicit Config.Region or env/profile
// resolution; this only applies the us-east-1 fallback for AWS S3 proper.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
