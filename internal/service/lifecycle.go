package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/cache"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// 状态迁移名称，用于指标
const (
	TransitionActivate = "activate"
	TransitionApprove  = "approve"
	TransitionReject   = "reject"
	TransitionDelete   = "delete"
)

// LifecycleService 付款确认与审核
type LifecycleService interface {
	// ConfirmPayment 付款成功回调：active + paid，expires_at 只在首次激活时写入
	ConfirmPayment(ctx context.Context, listingID string) (*model.Listing, error)
	// Approve 管理员审核通过
	Approve(ctx context.Context, listingID string, capa auth.Capability) (*model.Listing, error)
	// Reject 管理员拒绝
	Reject(ctx context.Context, listingID string, capa auth.Capability) (*model.Listing, error)
}

type lifecycleService struct {
	repo       repository.ListingRepository
	settings   SettingsService
	cache      *cache.BrowseCache
	metrics    *observability.Metrics
	dispatcher *SyncDispatcher
}

// NewLifecycleService dispatcher 为 nil 时激活后不自动同步
func NewLifecycleService(repo repository.ListingRepository, settings SettingsService, browse *cache.BrowseCache, metrics *observability.Metrics, dispatcher *SyncDispatcher) LifecycleService {
	return &lifecycleService{repo: repo, settings: settings, cache: browse, metrics: metrics, dispatcher: dispatcher}
}

func (s *lifecycleService) ConfirmPayment(ctx context.Context, listingID string) (*model.Listing, error) {
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	now := nowFunc()
	ok, err := s.repo.Activate(ctx, listingID, now.Add(cfg.ListingDuration()), now)
	if err != nil {
		return nil, fmt.Errorf("activate listing: %w", err)
	}
	l, err := s.afterTransition(ctx, listingID, ok, TransitionActivate)
	if err != nil {
		return nil, err
	}
	if s.dispatcher != nil && l.Eligible() {
		s.dispatcher.Enqueue(l.ID)
	}
	return l, nil
}

func (s *lifecycleService) Approve(ctx context.Context, listingID string, capa auth.Capability) (*model.Listing, error) {
	if err := requireAdmin(capa); err != nil {
		return nil, err
	}
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	now := nowFunc()
	ok, err := s.repo.Approve(ctx, listingID, now.Add(cfg.ListingDuration()), now)
	if err != nil {
		return nil, fmt.Errorf("approve listing: %w", err)
	}
	return s.afterTransition(ctx, listingID, ok, TransitionApprove)
}

func (s *lifecycleService) Reject(ctx context.Context, listingID string, capa auth.Capability) (*model.Listing, error) {
	if err := requireAdmin(capa); err != nil {
		return nil, err
	}
	ok, err := s.repo.Reject(ctx, listingID, nowFunc())
	if err != nil {
		return nil, fmt.Errorf("reject listing: %w", err)
	}
	return s.afterTransition(ctx, listingID, ok, TransitionReject)
}

// afterTransition 条件更新未命中时区分不存在 (NotFound) 与状态不允许 (Conflict)
func (s *lifecycleService) afterTransition(ctx context.Context, listingID string, applied bool, kind string) (*model.Listing, error) {
	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reload listing: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("cannot %s listing in status %q: %w", kind, l.Status, apperr.ErrConflict)
	}
	s.cache.Invalidate(ctx)
	s.metrics.Transition(kind)
	logger.Info("listing transition",
		zap.String("listing_id", l.ID),
		zap.String("transition", kind),
		zap.String("status", l.Status),
		zap.String("payment_status", l.PaymentStatus))
	return l, nil
}
