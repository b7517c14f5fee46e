package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotPending — транзакция уже завершена.
var ErrNotPending = errors.New("WAL-транзакция не в статусе pending")

// WAL — файловый журнал намерений.
type WAL struct {
	// dir — директория хранения WAL-файлов (SP_WAL_DIR)
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// New создаёт журнал в директории dir. Создаёт директорию и проверяет,
// что она доступна на запись.
func New(dir string, logger *slog.Logger) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию WAL %s: %w", dir, err)
	}

	probe := filepath.Join(dir, ".wal_write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория WAL %s недоступна для записи: %w", dir, err)
	}
	os.Remove(probe)

	return &WAL{
		dir:    dir,
		logger: logger.With(slog.String("component", "wal")),
	}, nil
}

// StartTransaction создаёт pending-запись для операции op над blobPath.
func (w *WAL) StartTransaction(op OperationType, blobPath, studentID string) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		BlobPath:      blobPath,
		StudentID:     studentID,
		StartedAt:     time.Now().UTC(),
	}

	if err := w.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать WAL-запись: %w", err)
	}

	w.logger.Debug("WAL транзакция начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(op)),
		slog.String("blob_path", blobPath),
	)
	return entry, nil
}

// Commit помечает транзакцию как завершённую.
func (w *WAL) Commit(txID string) error {
	return w.finish(txID, StatusCommitted)
}

// Rollback помечает транзакцию как отменённую.
func (w *WAL) Rollback(txID string) error {
	return w.finish(txID, StatusRolledBack)
}

func (w *WAL) finish(txID string, status TransactionStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.readEntry(txID)
	if err != nil {
		return fmt.Errorf("не удалось прочитать WAL-запись %s: %w", txID, err)
	}
	if entry.Status != StatusPending {
		return fmt.Errorf("%w: %s имеет статус %s", ErrNotPending, txID, entry.Status)
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.CompletedAt = &now

	if err := w.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить WAL-запись %s: %w", txID, err)
	}

	w.logger.Debug("WAL транзакция завершена",
		slog.String("tx_id", txID),
		slog.String("status", string(status)),
		slog.String("blob_path", entry.BlobPath),
		slog.Duration("duration", now.Sub(entry.StartedAt)),
	)
	return nil
}

// RecoverPending возвращает pending-записи в порядке начала транзакций.
func (w *WAL) RecoverPending() ([]*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	all, err := w.scan()
	if err != nil {
		return nil, err
	}

	var pending []*Entry
	for _, entry := range all {
		if entry.Status != StatusPending {
			continue
		}
		pending = append(pending, entry)
		w.logger.Warn("Обнаружена незавершённая WAL-транзакция",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.String("blob_path", entry.BlobPath),
			slog.Time("started_at", entry.StartedAt),
		)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].StartedAt.Before(pending[j].StartedAt)
	})
	return pending, nil
}

// GetTransaction читает запись по идентификатору транзакции.
func (w *WAL) GetTransaction(txID string) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readEntry(txID)
}

// CleanCommitted удаляет завершённые (committed, rolled_back) записи.
func (w *WAL) CleanCommitted() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	all, err := w.scan()
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, entry := range all {
		if entry.Status == StatusPending {
			continue
		}
		path := filepath.Join(w.dir, walFileName(entry.TransactionID))
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Не удалось удалить завершённую WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		w.logger.Info("Очистка WAL завершена", slog.Int("cleaned", cleaned))
	}
	return cleaned, nil
}

// Dir возвращает путь к директории WAL.
func (w *WAL) Dir() string {
	return w.dir
}

// scan читает все записи директории. Нечитаемые файлы пропускаются с предупреждением.
func (w *WAL) scan() ([]*Entry, error) {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*.wal.json"))
	if err != nil {
		return nil, fmt.Errorf("не удалось сканировать директорию WAL: %w", err)
	}

	entries := make([]*Entry, 0, len(paths))
	for _, path := range paths {
		txID := strings.TrimSuffix(filepath.Base(path), ".wal.json")
		entry, err := w.readEntry(txID)
		if err != nil {
			w.logger.Warn("Не удалось прочитать WAL-запись",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// writeEntry атомарно записывает запись: temp файл → fsync → rename.
func (w *WAL) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	target := filepath.Join(w.dir, walFileName(entry.TransactionID))

	f, err := os.CreateTemp(w.dir, walFileName(entry.TransactionID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

func (w *WAL) readEntry(txID string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, walFileName(txID)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}
	return &entry, nil
}
