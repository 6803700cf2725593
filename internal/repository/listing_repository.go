package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

// BrowseFilter 公开浏览的筛选条件
type BrowseFilter struct {
	Category string   `json:"category,omitempty"`
	Region   string   `json:"region,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Search   string   `json:"search,omitempty"`
	Sort     string   `json:"sort,omitempty"` // newest | oldest | price-low | price-high
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// Normalize 填充分页默认值
func (f *BrowseFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	switch f.Sort {
	case "newest", "oldest", "price-low", "price-high":
	default:
		f.Sort = "newest"
	}
	f.Search = strings.TrimSpace(f.Search)
}

// ListingStats 后台统计
type ListingStats struct {
	Total    int64 `json:"total_listings"`
	Eligible int64 `json:"active_listings"`
	Pending  int64 `json:"pending_listings"`
	Sellers  int64 `json:"sellers"`
}

// ListingRepository 分类信息仓储接口
type ListingRepository interface {
	// Create 新建
	Create(ctx context.Context, l *model.Listing) error

	// GetByID 按ID查询，不存在返回 apperr.ErrNotFound
	GetByID(ctx context.Context, id string) (*model.Listing, error)

	// GetOwned 按ID + 所有者查询；不存在与非本人一律 ErrNotFound
	GetOwned(ctx context.Context, id, userID string) (*model.Listing, error)

	// ListByUser 某用户的全部信息，新的在前
	ListByUser(ctx context.Context, userID string) ([]*model.Listing, error)

	// ListByStatus 后台按状态筛选，status 为空表示全部
	ListByStatus(ctx context.Context, status string, offset, limit int) ([]*model.Listing, error)

	// Browse 公开浏览：只返回 active + paid 且未过期
	Browse(ctx context.Context, f BrowseFilter, now time.Time) ([]*model.Listing, int64, error)

	// SetImages 回写图片 URL 列表
	SetImages(ctx context.Context, id string, images []string) error

	// Activate 付款确认：置为 active/paid，expires_at 只在首次激活时写入
	Activate(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)

	// Approve 审核通过；已付款时按 Activate 同样规则写 expires_at
	Approve(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)

	// Reject 审核拒绝
	Reject(ctx context.Context, id string, now time.Time) (bool, error)

	// Delete 删除（调用方已完成授权）
	Delete(ctx context.Context, id string) error

	// ExpireBefore 把已过期的 active 置为 expired，返回行数
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)

	// Stats 统计
	Stats(ctx context.Context, now time.Time) (ListingStats, error)

	// CountEligibleByUser 某卖家当前公开可见的信息数
	CountEligibleByUser(ctx context.Context, userID string, now time.Time) (int64, error)
}

type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository 创建仓储
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, l *model.Listing) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	var l model.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *listingRepository) GetOwned(ctx context.Context, id, userID string) (*model.Listing, error) {
	var l model.Listing
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *listingRepository) ListByUser(ctx context.Context, userID string) ([]*model.Listing, error) {
	var res []*model.Listing
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&res).Error
	return res, err
}

func (r *listingRepository) ListByStatus(ctx context.Context, status string, offset, limit int) ([]*model.Listing, error) {
	var res []*model.Listing
	q := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&res).Error
	return res, err
}

func (r *listingRepository) Browse(ctx context.Context, f BrowseFilter, now time.Time) ([]*model.Listing, int64, error) {
	f.Normalize()
	scope := browseScope(f, now)

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var res []*model.Listing
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Order(browseOrder(f.Sort)).
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&res).Error
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

func browseScope(f BrowseFilter, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = eligibleScope(db, now)
		if f.Category != "" {
			db = db.Where("category = ?", f.Category)
		}
		if f.Region != "" {
			db = db.Where("region = ?", f.Region)
		}
		if f.MinPrice != nil {
			db = db.Where("price >= ?", *f.MinPrice)
		}
		if f.MaxPrice != nil {
			db = db.Where("price <= ?", *f.MaxPrice)
		}
		if f.Search != "" {
			pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
			db = db.Where("(LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\')", pattern, pattern)
		}
		return db
	}
}

func eligibleScope(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("status = ? AND payment_status = ?", model.ListingStatusActive, model.PaymentStatusPaid).
		Where("(expires_at IS NULL OR expires_at > ?)", now)
}

func browseOrder(sort string) string {
	switch sort {
	case "oldest":
		return "created_at ASC"
	case "price-low":
		return "price ASC, created_at DESC"
	case "price-high":
		return "price DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (r *listingRepository) SetImages(ctx context.Context, id string, images []string) error {
	// serializer:json 字段需要走 struct 更新
	return r.db.WithContext(ctx).
		Model(&model.Listing{ID: id}).
		Select("images").
		Updates(&model.Listing{Images: images}).Error
}

func (r *listingRepository) Activate(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND status IN ?", id, []string{model.ListingStatusPending, model.ListingStatusActive}).
		Updates(map[string]interface{}{
			"status":         model.ListingStatusActive,
			"payment_status": model.PaymentStatusPaid,
			// 条件更新：已有 expires_at 时保持不变，重复回调不会重置有效期
			"expires_at": gorm.Expr("COALESCE(expires_at, ?)", expiresAt),
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *listingRepository) Approve(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND status IN ?", id, []string{model.ListingStatusPending, model.ListingStatusActive}).
		Updates(map[string]interface{}{
			"status":     model.ListingStatusActive,
			"expires_at": gorm.Expr("CASE WHEN payment_status = ? THEN COALESCE(expires_at, ?) ELSE expires_at END", model.PaymentStatusPaid, expiresAt),
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *listingRepository) Reject(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND status IN ?", id, []string{model.ListingStatusPending, model.ListingStatusRejected}).
		Updates(map[string]interface{}{
			"status":     model.ListingStatusRejected,
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *listingRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Listing{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *listingRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.ListingStatusActive, now).
		Updates(map[string]interface{}{"status": model.ListingStatusExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *listingRepository) CountEligibleByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	var n int64
	err := eligibleScope(r.db.WithContext(ctx).Model(&model.Listing{}), now).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (r *listingRepository) Stats(ctx context.Context, now time.Time) (ListingStats, error) {
	var s ListingStats
	db := r.db.WithContext(ctx).Model(&model.Listing{})
	if err := db.Session(&gorm.Session{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).Scopes(func(d *gorm.DB) *gorm.DB { return eligibleScope(d, now) }).Count(&s.Eligible).Error; err != nil {
		return s, err
	}
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).Where("status = ?", model.ListingStatusPending).Count(&s.Pending).Error; err != nil {
		return s, err
	}
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).Distinct("user_id").Count(&s.Sellers).Error; err != nil {
		return s, err
	}
	return s, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return err
}
