package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/cache"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/internal/storage"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// ListingView 带展示状态的 listing
type ListingView struct {
	*model.Listing
	DisplayStatus string `json:"display_status"`
	// Seller 只在详情中返回
	Seller *SellerTrust `json:"seller,omitempty"`
}

// 卖家信誉等级，按当前公开可见的信息数划分
const (
	SellerTierSeller   = "seller"
	SellerTierVerified = "verified"
	SellerTierTrusted  = "trusted"

	verifiedSellerListings = 5
	trustedSellerListings  = 10
)

// SellerTrust 卖家信誉徽章
type SellerTrust struct {
	ActiveListings int64  `json:"active_listings"`
	Tier           string `json:"tier"`
}

func sellerTrustOf(active int64) *SellerTrust {
	tier := SellerTierSeller
	switch {
	case active >= trustedSellerListings:
		tier = SellerTierTrusted
	case active >= verifiedSellerListings:
		tier = SellerTierVerified
	}
	return &SellerTrust{ActiveListings: active, Tier: tier}
}

func viewOf(l *model.Listing, now time.Time) ListingView {
	return ListingView{Listing: l, DisplayStatus: l.DisplayStatus(now)}
}

func viewsOf(ls []*model.Listing, now time.Time) []ListingView {
	out := make([]ListingView, len(ls))
	for i, l := range ls {
		out[i] = viewOf(l, now)
	}
	return out
}

// ListingService 浏览、详情与本人管理
type ListingService interface {
	Browse(ctx context.Context, f repository.BrowseFilter) (cache.BrowsePage, error)
	// Get 非公开的 listing 对无权限的调用方表现为不存在
	Get(ctx context.Context, id string, capa auth.Capability) (ListingView, error)
	ListMine(ctx context.Context, capa auth.Capability) ([]ListingView, error)
	// Delete 本人或管理员；图片尽力删除
	Delete(ctx context.Context, id string, capa auth.Capability) error
}

type listingService struct {
	repo    repository.ListingRepository
	store   storage.Store
	cache   *cache.BrowseCache
	metrics *observability.Metrics
}

func NewListingService(repo repository.ListingRepository, store storage.Store, browse *cache.BrowseCache, metrics *observability.Metrics) ListingService {
	return &listingService{repo: repo, store: store, cache: browse, metrics: metrics}
}

func (s *listingService) Browse(ctx context.Context, f repository.BrowseFilter) (cache.BrowsePage, error) {
	if err := validateBrowse(f).OrNil(); err != nil {
		return cache.BrowsePage{}, err
	}
	f.Normalize()
	page, err := s.cache.Fetch(ctx, f, func(ctx context.Context) (cache.BrowsePage, error) {
		items, total, err := s.repo.Browse(ctx, f, nowFunc())
		if err != nil {
			return cache.BrowsePage{}, fmt.Errorf("browse listings: %w", err)
		}
		return cache.BrowsePage{Items: items, Total: total}, nil
	})
	if err != nil {
		return cache.BrowsePage{}, err
	}
	if page.Items == nil {
		page.Items = []*model.Listing{}
	}
	return page, nil
}

func validateBrowse(f repository.BrowseFilter) *apperr.ValidationError {
	ve := apperr.NewValidationError()
	if f.Category != "" && !model.IsCategory(f.Category) {
		ve.Add("category", "unknown category")
	}
	if f.Region != "" && !model.IsRegion(f.Region) {
		ve.Add("region", "unknown region")
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		ve.Add("min_price", "must be greater than or equal to 0")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		ve.Add("max_price", "must be greater than or equal to min_price")
	}
	return ve
}

func (s *listingService) Get(ctx context.Context, id string, capa auth.Capability) (ListingView, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ListingView{}, err
	}
	now := nowFunc()
	// 过期的 listing 只对本人和管理员可见
	if !capa.CanRead(l) || (!capa.CanWrite(l) && l.DisplayStatus(now) == model.ListingStatusExpired) {
		return ListingView{}, apperr.ErrNotFound
	}
	v := viewOf(l, now)
	// 徽章只是附加信息，统计失败不影响详情
	n, err := s.repo.CountEligibleByUser(ctx, l.UserID, now)
	if err != nil {
		logger.Warn("count seller listings failed", zap.String("user_id", l.UserID), zap.Error(err))
		return v, nil
	}
	v.Seller = sellerTrustOf(n)
	return v, nil
}

func (s *listingService) ListMine(ctx context.Context, capa auth.Capability) ([]ListingView, error) {
	if !capa.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	ls, err := s.repo.ListByUser(ctx, capa.Identity().UserID)
	if err != nil {
		return nil, fmt.Errorf("list user listings: %w", err)
	}
	return viewsOf(ls, nowFunc()), nil
}

func (s *listingService) Delete(ctx context.Context, id string, capa auth.Capability) error {
	if !capa.Authenticated() {
		return apperr.ErrUnauthorized
	}
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !capa.CanWrite(l) {
		return apperr.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	s.metrics.Transition(TransitionDelete)
	s.removeImages(ctx, l)
	logger.Info("listing deleted", zap.String("listing_id", id), zap.String("by", capa.Identity().UserID))
	return nil
}

func (s *listingService) removeImages(ctx context.Context, l *model.Listing) {
	for _, url := range l.Images {
		key, ok := storage.KeyFromURL(s.store.PublicURL(""), url)
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			logger.Warn("image delete failed", zap.String("listing_id", l.ID), zap.String("key", key), zap.Error(err))
		}
	}
}
