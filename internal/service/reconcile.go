// reconcile.go — фоновая сверка хранилища blob'ов с каталогом.
//
// Обнаруживает:
//   - orphaned_blob: blob без карточки (удаляется, если старше grace period)
//   - missing_blob: карточка без blob'а (только отчёт и метрика)
//
// Запускается как горутина с периодическим тикером (SS_RECONCILE_INTERVAL)
// и по запросу администратора.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/storage/blobstore"
)

// Типы проблем сверки.
const (
	IssueOrphanedBlob = "orphaned_blob"
	IssueMissingBlob  = "missing_blob"
)

// Prometheus-метрики сверки.
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_reconcile_runs_total",
		Help: "Общее количество запусков сверки хранилища.",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой.",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ss_reconcile_duration_seconds",
		Help:    "Длительность сверки хранилища в секундах.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileIssue — одна обнаруженная проблема.
type ReconcileIssue struct {
	Type     string `json:"type"`
	Locator  string `json:"locator"`
	RecordID string `json:"recordId,omitempty"`
	// Deleted — orphaned blob удалён в этом проходе
	Deleted bool `json:"deleted"`
}

// ReconcileReport — результат одного прохода.
type ReconcileReport struct {
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  time.Time        `json:"completedAt"`
	BlobsChecked int              `json:"blobsChecked"`
	Records      int              `json:"records"`
	Issues       []ReconcileIssue `json:"issues"`
}

// ReconcileService — сверка хранилища.
type ReconcileService struct {
	repo        repository.CatalogRepository
	store       blobstore.Store
	interval    time.Duration
	gracePeriod time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
// interval — период фонового запуска, gracePeriod — минимальный возраст
// blob'а без карточки перед удалением (защищает загрузки в процессе).
func NewReconcileService(
	repo repository.CatalogRepository,
	store blobstore.Store,
	interval time.Duration,
	gracePeriod time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		repo:        repo,
		store:       store,
		interval:    interval,
		gracePeriod: gracePeriod,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
// При interval = 0 фоновая сверка не запускается.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Фоновая сверка отключена")
		return
	}

	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка хранилища запущена",
		slog.String("interval", rs.interval.String()),
		slog.String("grace_period", rs.gracePeriod.String()),
	)
}

// Stop останавливает фоновую сверку и дожидается выхода горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка хранилища остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rs.RunOnce(ctx); err != nil {
				rs.logger.Error("Ошибка сверки хранилища", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один проход сверки.
// Если проход уже выполняется, возвращает ErrReconcileInProgress.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		return nil, ErrReconcileInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	report := &ReconcileReport{StartedAt: rs.now().UTC(), Issues: []ReconcileIssue{}}
	rs.logger.Info("Сверка хранилища начата")

	blobs, err := rs.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("листинг хранилища: %w", err)
	}
	locators, err := rs.repo.ListLocators(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение locator'ов каталога: %w", err)
	}
	report.BlobsChecked = len(blobs)
	report.Records = len(locators)

	known := make(map[string]string, len(locators))
	for _, l := range locators {
		known[l.StorageLocator] = l.RecordID
	}
	present := make(map[string]struct{}, len(blobs))

	// Blob'ы без карточек
	for _, b := range blobs {
		present[b.Locator] = struct{}{}
		if _, ok := known[b.Locator]; ok {
			continue
		}

		issue := ReconcileIssue{Type: IssueOrphanedBlob, Locator: b.Locator}
		if rs.now().Sub(b.ModTime) >= rs.gracePeriod {
			if err := rs.store.Delete(ctx, b.Locator); err != nil {
				rs.logger.Warn("Не удалось удалить orphaned blob",
					slog.String("locator", b.Locator),
					slog.String("error", err.Error()),
				)
			} else {
				issue.Deleted = true
			}
		}
		report.Issues = append(report.Issues, issue)
	}

	// Карточки без blob'ов
	for _, l := range locators {
		if _, ok := present[l.StorageLocator]; ok {
			continue
		}
		rs.logger.Warn("Карточка без blob'а",
			slog.String("file_id", l.RecordID),
			slog.String("locator", l.StorageLocator),
		)
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:     IssueMissingBlob,
			Locator:  l.StorageLocator,
			RecordID: l.RecordID,
		})
	}

	report.CompletedAt = rs.now().UTC()
	duration := report.CompletedAt.Sub(report.StartedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Сверка хранилища завершена",
		slog.Int("blobs_checked", report.BlobsChecked),
		slog.Int("records", report.Records),
		slog.Int("issues", len(report.Issues)),
		slog.Duration("duration", duration),
	)

	return report, nil
}
