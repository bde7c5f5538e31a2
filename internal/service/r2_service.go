package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cfg "github.com/postmux/postmux/configs"
	"github.com/postmux/postmux/internal/models"
)

// MediaStorage is the storage collaborator the pipeline consumes:
// resolving a downloadable reference for a media object and deleting
// the object after full publication. Uploads happen elsewhere.
type MediaStorage interface {
	ResolveURL(ctx context.Context, media *models.Media) (string, error)
	Remove(ctx context.Context, storageKey string) error
}

type R2Service struct {
	config cfg.Config
}

func NewR2Service(cfg cfg.Config) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) R2Client() *s3.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		log.Fatal(err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	})
}

// ResolveURL returns a reference the platforms can pull the media from.
// Public objects keep their stored URL; otherwise a presigned GET link
// is generated so providers can download without bucket credentials.
func (r *R2Service) ResolveURL(ctx context.Context, media *models.Media) (string, error) {
	if media.FileURL != "" {
		return media.FileURL, nil
	}

	presigner := s3.NewPresignClient(r.R2Client())
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.R2.BucketName),
		Key:    aws.String(media.StorageKey),
	}, s3.WithPresignExpires(1*time.Hour))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return req.URL, nil
}

// Remove deletes the storage object. A missing key is not an error so a
// pass that lost the delete race stays clean.
func (r *R2Service) Remove(ctx context.Context, storageKey string) error {
	_, err := r.R2Client().DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.config.R2.BucketName),
		Key:    aws.String(storageKey),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil
		}
		slog.Info(err.Error())
		return err
	}
	return nil
}
