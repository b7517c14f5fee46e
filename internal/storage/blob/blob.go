// Пакет blob — интерфейс хранилища файлов работ и общие утилиты:
// генерация ключей blob и подсчёт SHA-256 при потоковой записи.
//
// Реализации: filestore (локальный диск), memstore (в памяти),
// b2store (Backblaze B2).
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound — blob с указанным ключом не существует.
var ErrNotFound = errors.New("blob не найден")

// ErrInvalidPath — ключ blob недопустим (пустой, абсолютный, выход за корень).
var ErrInvalidPath = errors.New("недопустимый ключ blob")

// Store — хранилище blob. Ключи — относительные пути с разделителем "/".
type Store interface {
	// Put записывает содержимое reader под ключом path.
	// Возвращает размер и SHA-256 записанных данных.
	Put(ctx context.Context, path string, r io.Reader) (*PutResult, error)
	// Delete удаляет blob. Удаление отсутствующего blob — не ошибка.
	Delete(ctx context.Context, path string) error
	// Open открывает blob для чтения. ErrNotFound, если blob нет.
	// Вызывающий код обязан закрыть ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Exists проверяет наличие blob.
	Exists(ctx context.Context, path string) (bool, error)
}

// PutResult — результат записи blob.
type PutResult struct {
	// Path — ключ blob
	Path string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// HashingReader подсчитывает SHA-256 и размер прочитанных данных.
type HashingReader struct {
	r      io.Reader
	hasher hash.Hash
	n      int64
}

// NewHashingReader оборачивает r для подсчёта SHA-256 на лету.
func NewHashingReader(r io.Reader) *HashingReader {
	h := sha256.New()
	return &HashingReader{r: io.TeeReader(r, h), hasher: h}
}

func (h *HashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	h.n += int64(n)
	return n, err
}

// Result возвращает PutResult для прочитанных данных.
func (h *HashingReader) Result(path string) *PutResult {
	return &PutResult{
		Path:     path,
		Size:     h.n,
		Checksum: hex.EncodeToString(h.hasher.Sum(nil)),
	}
}

// NewPath генерирует уникальный ключ blob для файла студента.
// Формат: submissions/{student}/{timestamp}_{uuid8}{ext}
// Пример: submissions/student-42/20260221T150405.123456789Z_a1b2c3d4.pdf
func NewPath(studentID, originalFilename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if len(ext) > 16 || sanitize(strings.TrimPrefix(ext, ".")) != strings.TrimPrefix(ext, ".") {
		ext = ""
	}

	student := sanitize(studentID)
	if len(student) > 64 {
		student = student[:64]
	}

	ts := now.UTC().Format("20060102T150405.000000000Z")
	uid := uuid.New().String()[:8]

	return fmt.Sprintf("submissions/%s/%s_%s%s", student, ts, uid, ext)
}

// CleanPath нормализует ключ blob и проверяет, что он не выходит за корень хранилища.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// sanitize оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "unknown"
	}
	return result.String()
}
