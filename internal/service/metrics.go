package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики жизненного цикла работ.
var (
	// uploadsTotal — загрузки по результату.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sp_uploads_total",
		Help: "Общее количество загрузок работ (по результату).",
	}, []string{"result"})

	// uploadBytesTotal — объём успешно загруженных файлов.
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_upload_bytes_total",
		Help: "Общее количество байт в успешно загруженных работах.",
	})

	// compensationsTotal — компенсирующие удаления blob после ошибки записи.
	compensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sp_compensations_total",
		Help: "Компенсирующие удаления blob после ошибки хранилища записей.",
	}, []string{"result"})

	// blobCleanupTotal — best-effort удаления устаревших blob.
	blobCleanupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sp_blob_cleanup_total",
		Help: "Удаления устаревших blob (replace, purge, cascade) по результату.",
	}, []string{"reason", "result"})

	// reviewsTotal — решения по работам.
	reviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sp_reviews_total",
		Help: "Общее количество решений по работам (по решению).",
	}, []string{"decision"})

	// recoveryEntriesTotal — исходы разбора журнала при старте.
	recoveryEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sp_recovery_entries_total",
		Help: "Разобранные при старте записи журнала (по операции и исходу).",
	}, []string{"operation", "outcome"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш работ.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша работ.",
	})
	cacheStaleSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_cache_stale_skips_total",
		Help: "Чтения, не попавшие в кэш из-за параллельного изменения работы.",
	})
)
