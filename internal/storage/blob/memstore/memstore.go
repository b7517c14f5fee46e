// Пакет memstore — хранилище blob в памяти процесса.
// Используется для разработки и тестов (SP_BLOB_STORE=memory).
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/bigkaa/submission-portal/internal/storage/blob"
)

// Store — потокобезопасное хранилище blob в памяти.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ blob.Store = (*Store)(nil)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put читает reader целиком и сохраняет данные под ключом path.
// При ошибке чтения существующий blob не изменяется.
func (s *Store) Put(ctx context.Context, path string, r io.Reader) (*blob.PutResult, error) {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return nil, err
	}

	hr := blob.NewHashingReader(r)
	data, err := io.ReadAll(hr)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения данных: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[cleaned] = data
	s.mu.Unlock()

	return hr.Result(cleaned), nil
}

// Delete удаляет blob. Отсутствие blob — не ошибка.
func (s *Store) Delete(_ context.Context, path string) error {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.blobs, cleaned)
	s.mu.Unlock()
	return nil
}

// Open возвращает reader по копии данных blob.
func (s *Store) Open(_ context.Context, path string) (io.ReadCloser, error) {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.blobs[cleaned]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, path)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Exists проверяет наличие blob.
func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	cleaned, err := blob.CleanPath(path)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	_, ok := s.blobs[cleaned]
	s.mu.RUnlock()
	return ok, nil
}

// Paths возвращает отсортированный список ключей.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.blobs))
	for p := range s.blobs {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}
