// Package cloudtest seeds buckets on a local S3-compatible endpoint (moto)
// for integration tests tagged cloudintegration.
//
// Usage:
//
//	func TestBrowse(t *testing.T) {
//	    fx := cloudtest.NewFixture(t)
//	    fx.Put("dir/a.txt", "dir/b.txt")
//	    p, _ := s3.New(cloudtest.S3Config())
//	}
package cloudtest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/3leaps/nimbusurf/pkg/provider/minio"
	"github.com/3leaps/nimbusurf/pkg/provider/s3"
)

// Port 5555 avoids macOS AirPlay on 5000.
const (
	defaultEndpoint = "http://localhost:5555"
	defaultRegion   = "us-east-1"

	// moto accepts any credentials.
	accessKey = "testing"
	secretKey = "testing"
)

var (
	// Endpoint is overridden by MOTO_ENDPOINT.
	Endpoint = envOr("MOTO_ENDPOINT", defaultEndpoint)

	// Region is overridden by MOTO_REGION.
	Region = envOr("MOTO_REGION", defaultRegion)

	clientOnce sync.Once
	client     *awss3.Client
	clientErr  error
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Available reports whether the moto server answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// S3Config points the aws-sdk provider at moto.
func S3Config() s3.Config {
	return s3.Config{
		Endpoint:        Endpoint,
		Region:          Region,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		ForcePathStyle:  true,
	}
}

// MinioConfig points the minio-go provider at moto.
func MinioConfig() minio.Config {
	return minio.Config{
		Endpoint:  Endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Region:    Region,
		UseSSL:    strings.HasPrefix(Endpoint, "https://"),
	}
}

func seedClient() (*awss3.Client, error) {
	clientOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			clientErr = fmt.Errorf("load config: %w", err)
			return
		}
		client = awss3.NewFromConfig(cfg, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	return client, clientErr
}

// Fixture is a uniquely named bucket that is emptied and removed when the
// test ends.
type Fixture struct {
	t      *testing.T
	ctx    context.Context
	client *awss3.Client
	Bucket string
}

// NewFixture skips t when moto is down, otherwise creates a bucket.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	if !Available() {
		t.Skipf("moto server not available at %s", Endpoint)
	}
	c, err := seedClient()
	if err != nil {
		t.Fatalf("s3 client: %v", err)
	}

	fx := &Fixture{
		t:      t,
		ctx:    context.Background(),
		client: c,
		Bucket: "nimbusurf-" + uuid.NewString()[:13],
	}
	if _, err := c.CreateBucket(fx.ctx, &awss3.CreateBucketInput{Bucket: aws.String(fx.Bucket)}); err != nil {
		t.Fatalf("create bucket %s: %v", fx.Bucket, err)
	}
	t.Cleanup(fx.remove)
	return fx
}

// Put uploads each key with the content "content of <key>".
func (fx *Fixture) Put(keys ...string) {
	fx.t.Helper()
	for _, key := range keys {
		fx.PutData(key, []byte("content of "+key))
	}
}

// PutData uploads one object.
func (fx *Fixture) PutData(key string, data []byte) {
	fx.t.Helper()
	_, err := fx.client.PutObject(fx.ctx, &awss3.PutObjectInput{
		Bucket: aws.String(fx.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		fx.t.Fatalf("put %s/%s: %v", fx.Bucket, key, err)
	}
}

// Exists reports whether key is present.
func (fx *Fixture) Exists(key string) bool {
	fx.t.Helper()
	_, err := fx.client.HeadObject(fx.ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(fx.Bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func (fx *Fixture) remove() {
	ctx := context.Background()
	pages := awss3.NewListObjectsV2Paginator(fx.client, &awss3.ListObjectsV2Input{Bucket: aws.String(fx.Bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			fx.t.Logf("cleanup list %s: %v", fx.Bucket, err)
			return
		}
		for _, obj := range page.Contents {
			if _, err := fx.client.DeleteObject(ctx, &awss3.DeleteObjectInput{Bucket: aws.String(fx.Bucket), Key: obj.Key}); err != nil {
				fx.t.Logf("cleanup delete %s: %v", aws.ToString(obj.Key), err)
			}
		}
	}
	if _, err := fx.client.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(fx.Bucket)}); err != nil {
		fx.t.Logf("cleanup bucket %s: %v", fx.Bucket, err)
	}
}
