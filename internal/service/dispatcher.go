package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

type syncJob struct {
	listingID string
	enqAt     time.Time
}

// SyncDispatcher 激活后的异步同步：本地有界队列，每条只尝试一次，满了直接丢弃
type SyncDispatcher struct {
	repo       repository.ListingRepository
	syndicator SyndicationService
	metrics    *observability.Metrics
	timeout    time.Duration
	ch         chan syncJob
	wg         sync.WaitGroup
}

func NewSyncDispatcher(repo repository.ListingRepository, syndicator SyndicationService, metrics *observability.Metrics, queueSize int, timeout time.Duration) *SyncDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SyncDispatcher{
		repo:       repo,
		syndicator: syndicator,
		metrics:    metrics,
		timeout:    timeout,
		ch:         make(chan syncJob, queueSize),
	}
}

// Start 启动 workers，返回的 stop 等待在途任务结束或 ctx 到期；队列里剩余的任务被丢弃
func (d *SyncDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case job := <-d.ch:
					d.run(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stopCh) })
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			if n := len(d.ch); n > 0 {
				logger.Warn("sync dispatcher stopped with queued jobs", zap.Int("dropped", n))
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *SyncDispatcher) run(job syncJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	l, err := d.repo.GetByID(ctx, job.listingID)
	if err != nil {
		logger.Warn("sync dispatcher load failed", zap.String("listing_id", job.listingID), zap.Error(err))
		return
	}
	res := d.syndicator.Forward(ctx, l)
	logger.Debug("sync dispatched",
		zap.String("listing_id", job.listingID),
		zap.Bool("synced", res.Synced),
		zap.Duration("queued", time.Since(job.enqAt)))
}

// Enqueue 非阻塞入队
func (d *SyncDispatcher) Enqueue(listingID string) {
	select {
	case d.ch <- syncJob{listingID: listingID, enqAt: time.Now()}:
	default:
		d.metrics.SyncOutcome(observability.SyncDropped)
		logger.Warn("sync queue full, drop", zap.String("listing_id", listingID))
	}
}

// QueueLen 当前队列长度（采样值）
func (d *SyncDispatcher) QueueLen() int { return len(d.ch) }
