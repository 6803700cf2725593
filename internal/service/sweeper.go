package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/cache"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// ExpirySweeper 把已过 expires_at 的 active 信息落为 expired；由外部定时任务调用
type ExpirySweeper struct {
	repo    repository.ListingRepository
	cache   *cache.BrowseCache
	metrics *observability.Metrics
}

func NewExpirySweeper(repo repository.ListingRepository, browse *cache.BrowseCache, metrics *observability.Metrics) *ExpirySweeper {
	return &ExpirySweeper{repo: repo, cache: browse, metrics: metrics}
}

// Sweep 返回本次更新的行数
func (s *ExpirySweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, nowFunc())
	if err != nil {
		return 0, fmt.Errorf("expire listings: %w", err)
	}
	if n > 0 {
		s.cache.Invalidate(ctx)
		s.metrics.Expired(n)
	}
	logger.Info("expiry sweep done", zap.Int64("expired", n))
	return n, nil
}
