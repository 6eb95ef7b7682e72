package mediastore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

const defaultURLTTL = 10 * time.Minute

// Minio реализует объектное хранилище платформы. Корзина приватная,
// воспроизведение идёт по подписанным ссылкам с коротким сроком жизни.
type Minio struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
}

var _ domain.MediaStore = (*Minio)(nil)

// New создаёт клиента хранилища.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, urlTTL time.Duration) (*Minio, error) {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента хранилища: %w", err)
	}
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	return &Minio{client: client, bucket: bucket, urlTTL: urlTTL}, nil
}

// EnsureBucket создаёт корзину, если её ещё нет.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	start := time.Now()
	exists, err := m.client.BucketExists(ctx, m.bucket)
	metrics.ObserveNetworkRequest("media-store", "bucket_exists", m.bucket, start, err)
	if err != nil {
		return fmt.Errorf("проверка корзины: %w", err)
	}
	if exists {
		return nil
	}
	start = time.Now()
	err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	metrics.ObserveNetworkRequest("media-store", "make_bucket", m.bucket, start, err)
	if err != nil {
		return fmt.Errorf("создание корзины: %w", err)
	}
	return nil
}

// Put загружает объект под указанным ключом.
func (m *Minio) Put(ctx context.Context, key, contentType string, data []byte) error {
	if key == "" {
		return domain.ErrInvalidInput
	}
	start := time.Now()
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	metrics.ObserveNetworkRequest("media-store", "put_object", m.bucket, start, err)
	if err != nil {
		return fmt.Errorf("загрузка объекта: %w", err)
	}
	return nil
}

// ResolveURL возвращает подписанную ссылку воспроизведения объекта.
func (m *Minio) ResolveURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", domain.ErrInvalidInput
	}
	start := time.Now()
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.urlTTL, nil)
	metrics.ObserveNetworkRequest("media-store", "presign_get", m.bucket, start, err)
	if err != nil {
		return "", fmt.Errorf("подпись ссылки: %w", err)
	}
	return u.String(), nil
}
