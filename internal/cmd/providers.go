package cmd

import (
	"fmt"

	"github.com/3leaps/nimbusurf/internal/config"
	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/provider/gcs"
	"github.com/3leaps/nimbusurf/pkg/provider/memory"
	"github.com/3leaps/nimbusurf/pkg/provider/minio"
	"github.com/3leaps/nimbusurf/pkg/provider/s3"
)

// newProvider builds the storage provider for a scheme. Tests replace it.
var newProvider = func(scheme cloudpath.Scheme, cfg *config.Config, demo bool) (provider.Provider, error) {
	if demo {
		return memory.NewDemo(scheme), nil
	}
	switch scheme {
	case cloudpath.SchemeGCS:
		return gcs.New(gcs.Config{
			Project:         cfg.GCS.Project,
			CredentialsFile: cfg.GCS.CredentialsFile,
		}), nil
	case cloudpath.SchemeS3:
		return newS3Provider(cfg.S3)
	default:
		return nil, fmt.Errorf("%w: %s", cloudpath.ErrUnsupportedScheme, scheme)
	}
}

func newS3Provider(cfg config.S3Config) (provider.Provider, error) {
	if cfg.Driver == config.DriverMinio {
		p, err := minio.New(minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKeyID,
			SecretKey: cfg.SecretAccessKey,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := s3.New(s3.Config{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		// S3-compatible services behind a custom endpoint need path-style URLs.
		ForcePathStyle: cfg.ForcePathStyle || cfg.Endpoint != "",
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
