// Пакет wal — файловый журнал намерений для операций с blob.
//
// Перед записью или удалением blob создаётся запись со статусом pending.
// После того как запись о работе в хранилище записей согласована с blob,
// журнал коммитится или откатывается. Pending записи, оставшиеся после
// сбоя, разбирает процедура восстановления при старте.
// Каждая транзакция — отдельный файл {tx_id}.wal.json в SP_WAL_DIR.
package wal

import (
	"time"
)

// OperationType — тип операции над blob.
type OperationType string

const (
	// OpBlobPut — запись нового blob (загрузка работы)
	OpBlobPut OperationType = "blob_put"
	// OpBlobDelete — удаление blob (замена, отклонение с purge, удаление студента)
	OpBlobDelete OperationType = "blob_delete"
)

// TransactionStatus — статус транзакции.
type TransactionStatus string

const (
	// StatusPending — операция начата, исход не зафиксирован
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — операция завершена успешно
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — операция отменена
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись журнала. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID — UUID v4 транзакции
	TransactionID string `json:"transaction_id"`

	// Operation — тип операции
	Operation OperationType `json:"operation"`

	// Status — текущий статус транзакции
	Status TransactionStatus `json:"status"`

	// BlobPath — ключ blob, над которым выполняется операция
	BlobPath string `json:"blob_path"`

	// StudentID — владелец работы (для диагностики)
	StudentID string `json:"student_id,omitempty"`

	// StartedAt — время начала (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения (UTC), nil для pending
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func walFileName(txID string) string {
	return txID + ".wal.json"
}
