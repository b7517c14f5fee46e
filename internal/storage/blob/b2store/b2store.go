// Пакет b2store — хранилище blob в Backblaze B2 (SP_BLOB_STORE=b2).
package b2store

import (
	"context"
	"fmt"
	"io"

	"github.com/kurin/blazer/b2"

	"github.com/bigkaa/submission-portal/internal/storage/blob"
)

// Store — blob.Store поверх bucket Backblaze B2.
type Store struct {
	client *b2.Client
	bucket *b2.Bucket
}

var _ blob.Store = (*Store)(nil)

// New подключается к B2 и открывает bucket.
func New(ctx context.Context, accountID, appKey, bucketName string) (*Store, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента B2: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия bucket %s: %w", bucketName, err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Put загружает содержимое reader в объект path.
// При ошибке чтения загрузка отменяется через контекст writer-а,
// чтобы в bucket не остался частично записанный объект.
func (s *Store) Put(ctx context.Context, path string, r io.Reader) (*blob.PutResult, error) {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(cleaned).NewWriter(wctx)
	hr := blob.NewHashingReader(r)

	if _, err := io.Copy(w, hr); err != nil {
		cancel()
		_ = w.Close()
		return nil, fmt.Errorf("ошибка записи объекта %s: %w", cleaned, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения загрузки объекта %s: %w", cleaned, err)
	}

	return hr.Result(cleaned), nil
}

// Delete удаляет объект. Отсутствие объекта — не ошибка.
func (s *Store) Delete(ctx context.Context, path string) error {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return err
	}

	if err := s.bucket.Object(cleaned).Delete(ctx); err != nil && !b2.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", cleaned, err)
	}
	return nil
}

// Open открывает объект для чтения.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return nil, err
	}

	obj := s.bucket.Object(cleaned)
	// NewReader ленивый: отсутствие объекта проверяем заранее
	if _, err := obj.Attrs(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, cleaned)
		}
		return nil, fmt.Errorf("ошибка получения атрибутов объекта %s: %w", cleaned, err)
	}
	return obj.NewReader(ctx), nil
}

// Exists проверяет наличие объекта.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return false, err
	}

	if _, err := s.bucket.Object(cleaned).Attrs(ctx); err != nil {
		if b2.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка получения атрибутов объекта %s: %w", cleaned, err)
	}
	return true, nil
}

// BucketName возвращает имя bucket.
func (s *Store) BucketName() string {
	return s.bucket.Name()
}
