package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/segmentio/ksuid"

	"github.com/render-tgm/server/internal/config"
)

// Backup mirrors processed artifacts to an S3-compatible bucket. It is an
// archival safety net, not the primary store: the API keeps serving from
// local disk whether or not a mirror is configured.
type Backup struct {
	client *minio.Client
	bucket string
	region string
}

// NewBackup returns (nil, nil) when no endpoint is configured; callers
// treat a nil *Backup as "mirroring disabled".
func NewBackup(cfg config.StorageConfig) (*Backup, error) {
	if cfg.BackupEndpoint == "" {
		return nil, nil
	}

	endpoint := cfg.BackupEndpoint
	useSSL := cfg.BackupUseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse backup endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.BackupAccessKey, cfg.BackupSecretKey, ""),
		Secure: useSSL,
		Region: cfg.BackupRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("init backup client: %w", err)
	}

	return &Backup{
		client: client,
		bucket: cfg.BackupBucket,
		region: cfg.BackupRegion,
	}, nil
}

func (b *Backup) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", b.bucket, err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", b.bucket, err)
		}
	}
	return nil
}

// Mirror uploads the file at diskPath under a date-prefixed, ksuid-keyed
// object name and returns the key.
func (b *Backup) Mirror(ctx context.Context, diskPath string, contentType string) (string, error) {
	key := b.buildObjectKey(filepath.Ext(diskPath))

	if _, err := b.client.FPutObject(ctx, b.bucket, key, diskPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (b *Backup) buildObjectKey(ext string) string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return fmt.Sprintf("%s/%s%s", datePrefix, ksuid.New().String(), ext)
}
