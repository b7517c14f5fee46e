package model

import (
	"time"

	"github.com/bigkaa/submission-portal/internal/domain/lifecycle"
)

// Submission — текущая работа студента.
// Хранится в таблице submissions, не более одной записи на студента.
type Submission struct {
	// ID — UUID работы (задаётся при первой загрузке, не меняется)
	ID string
	// StudentID — ID студента-владельца
	StudentID string
	// StudentName — имя студента на момент загрузки
	StudentName string
	// FileName — оригинальное имя файла (nil после удаления blob)
	FileName *string
	// FileSize — размер файла в байтах
	FileSize *int64
	// FileType — MIME-тип файла
	FileType *string
	// FilePath — ключ blob в хранилище файлов
	FilePath *string
	// Checksum — SHA-256 содержимого (hex)
	Checksum *string
	// Status — статус работы
	Status lifecycle.Status
	// Feedback — комментарий проверяющего (для REJECTED и CHANGES_REQUESTED)
	Feedback *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// SubmittedAt — время последней загрузки файла
	SubmittedAt time.Time
	// ReviewedBy — ID администратора, принявшего решение
	ReviewedBy *string
	// ReviewedAt — время решения
	ReviewedAt *time.Time
	// UpdatedAt — время последнего обновления записи
	UpdatedAt time.Time
}

// HasFile сообщает, ссылается ли запись на blob.
func (s *Submission) HasFile() bool {
	return s.FilePath != nil && *s.FilePath != ""
}

// Clone возвращает глубокую копию работы.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	c := *s
	c.FileName = clonePtr(s.FileName)
	c.FileSize = clonePtr(s.FileSize)
	c.FileType = clonePtr(s.FileType)
	c.FilePath = clonePtr(s.FilePath)
	c.Checksum = clonePtr(s.Checksum)
	c.Feedback = clonePtr(s.Feedback)
	c.ReviewedBy = clonePtr(s.ReviewedBy)
	c.ReviewedAt = clonePtr(s.ReviewedAt)
	return &c
}

// FileUpdate — новые поля файла для upsert работы.
type FileUpdate struct {
	FileName string
	FileSize int64
	FileType string
	FilePath string
	Checksum string
}

// ReviewUpdate — результат ревью для условного обновления работы.
type ReviewUpdate struct {
	Status     lifecycle.Status
	Feedback   *string
	ReviewedBy string
	ReviewedAt time.Time
	// PurgeFile — очистить поля файла (политика purge при отклонении)
	PurgeFile bool
	// FileName — новое имя файла при PurgeFile (с префиксом "(Rejected) ")
	FileName *string
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
