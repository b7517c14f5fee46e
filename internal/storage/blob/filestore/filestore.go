// Пакет filestore — хранилище blob на локальном диске.
// Запись потоковая с подсчётом SHA-256 на лету.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bigkaa/submission-portal/internal/storage/blob"
)

// FileStore — blob.Store поверх директории на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (SP_DATA_DIR)
	dataDir string
}

var _ blob.Store = (*FileStore)(nil)

// New создаёт FileStore, создавая директорию при необходимости.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// Put записывает данные из reader в файл path.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется, существующий blob не затрагивается.
func (s *FileStore) Put(ctx context.Context, path string, r io.Reader) (*blob.PutResult, error) {
	fullPath, cleaned, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(fullPath), filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	hr := blob.NewHashingReader(&ctxReader{ctx: ctx, r: r})
	if _, err := io.Copy(f, hr); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return hr.Result(cleaned), nil
}

// Delete удаляет файл. Отсутствие файла — не ошибка.
func (s *FileStore) Delete(_ context.Context, path string) error {
	fullPath, _, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// Open открывает файл для чтения.
func (s *FileStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	fullPath, _, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, path)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	return f, nil
}

// Exists проверяет существование файла.
func (s *FileStore) Exists(_ context.Context, path string) (bool, error) {
	fullPath, _, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
}

// DataDir возвращает путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

// resolve проверяет ключ и возвращает абсолютный путь на диске.
func (s *FileStore) resolve(path string) (fullPath, cleaned string, err error) {
	cleaned, err = blob.CleanPath(path)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.dataDir, filepath.FromSlash(cleaned)), cleaned, nil
}

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
