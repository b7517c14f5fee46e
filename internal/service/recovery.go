// recovery.go — разбор незавершённых записей журнала при старте.
//
// Pending-запись означает, что процесс не узнал исход операции с blob.
// Истина — в хранилище записей:
//   - blob_put: путь есть в записи → commit; иначе blob-сирота удаляется → rollback
//   - blob_delete: путь есть в записи → rollback (blob снова актуален);
//     иначе blob удаляется → commit
//
// Ошибки логируются, запись остаётся pending до следующего старта.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/submission-portal/internal/repository"
	"github.com/bigkaa/submission-portal/internal/storage/blob"
	"github.com/bigkaa/submission-portal/internal/storage/wal"
)

// RecoveryJournal — операции журнала, нужные для восстановления.
type RecoveryJournal interface {
	RecoverPending() ([]*wal.Entry, error)
	Commit(txID string) error
	Rollback(txID string) error
	CleanCommitted() (int, error)
}

// RecoveryReport — итоги восстановления.
type RecoveryReport struct {
	Committed  int
	RolledBack int
	Failed     int
	Cleaned    int
}

// RecoveryService — процедура восстановления согласованности blob и записей.
type RecoveryService struct {
	journal RecoveryJournal
	subs    repository.SubmissionRepository
	blobs   blob.Store
	logger  *slog.Logger
}

// NewRecoveryService создаёт сервис восстановления.
func NewRecoveryService(
	journal RecoveryJournal,
	subs repository.SubmissionRepository,
	blobs blob.Store,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		journal: journal,
		subs:    subs,
		blobs:   blobs,
		logger:  logger.With(slog.String("component", "recovery")),
	}
}

// Run разбирает pending-записи журнала и очищает завершённые.
// Ошибка возвращается только если журнал нельзя прочитать.
func (r *RecoveryService) Run(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	pending, err := r.journal.RecoverPending()
	if err != nil {
		return report, fmt.Errorf("чтение журнала: %w", err)
	}

	for _, entry := range pending {
		outcome, err := r.resolve(ctx, entry)
		if err != nil {
			report.Failed++
			recoveryEntriesTotal.WithLabelValues(string(entry.Operation), "failed").Inc()
			r.logger.Error("Не удалось разобрать WAL-запись",
				slog.String("tx_id", entry.TransactionID),
				slog.String("operation", string(entry.Operation)),
				slog.String("blob_path", entry.BlobPath),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch outcome {
		case wal.StatusCommitted:
			report.Committed++
		case wal.StatusRolledBack:
			report.RolledBack++
		}
		recoveryEntriesTotal.WithLabelValues(string(entry.Operation), string(outcome)).Inc()
	}

	cleaned, err := r.journal.CleanCommitted()
	if err != nil {
		r.logger.Warn("Очистка журнала не выполнена", slog.String("error", err.Error()))
	}
	report.Cleaned = cleaned

	r.logger.Info("Восстановление завершено",
		slog.Int("pending", len(pending)),
		slog.Int("committed", report.Committed),
		slog.Int("rolled_back", report.RolledBack),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// resolve определяет исход одной записи и фиксирует его в журнале.
func (r *RecoveryService) resolve(ctx context.Context, entry *wal.Entry) (wal.TransactionStatus, error) {
	referenced, err := r.subs.ReferencesPath(ctx, entry.BlobPath)
	if err != nil {
		return "", err
	}

	var outcome wal.TransactionStatus
	switch entry.Operation {
	case wal.OpBlobPut:
		if referenced {
			outcome = wal.StatusCommitted
			break
		}
		if err := r.blobs.Delete(ctx, entry.BlobPath); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBlobDelete, err)
		}
		r.logger.Info("Удалён blob-сирота", slog.String("blob_path", entry.BlobPath))
		outcome = wal.StatusRolledBack

	case wal.OpBlobDelete:
		if referenced {
			outcome = wal.StatusRolledBack
			break
		}
		if err := r.blobs.Delete(ctx, entry.BlobPath); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBlobDelete, err)
		}
		outcome = wal.StatusCommitted

	default:
		return "", fmt.Errorf("неизвестная операция %q", entry.Operation)
	}

	if outcome == wal.StatusCommitted {
		err = r.journal.Commit(entry.TransactionID)
	} else {
		err = r.journal.Rollback(entry.TransactionID)
	}
	if err != nil {
		return "", fmt.Errorf("фиксация исхода: %w", err)
	}
	return outcome, nil
}
