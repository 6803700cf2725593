package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

// SiteConfigRepository 全局设置仓储
type SiteConfigRepository interface {
	// Get 读取设置；首次读取时写入默认行
	Get(ctx context.Context) (model.SiteConfig, error)
	// Update 乐观锁更新，版本不符返回 apperr.ErrConflict
	Update(ctx context.Context, cfg model.SiteConfig, expectedVersion int64) (model.SiteConfig, error)
}

type siteConfigRepository struct{ db *gorm.DB }

func NewSiteConfigRepository(db *gorm.DB) SiteConfigRepository {
	return &siteConfigRepository{db: db}
}

func (r *siteConfigRepository) Get(ctx context.Context) (model.SiteConfig, error) {
	var cfg model.SiteConfig
	err := r.db.WithContext(ctx).Where("id = ?", model.SiteConfigID).First(&cfg).Error
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return cfg, err
	}
	def := model.DefaultSiteConfig()
	// 并发初始化时只有一个写入成功
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&def).Error; err != nil {
		return cfg, err
	}
	err = r.db.WithContext(ctx).Where("id = ?", model.SiteConfigID).First(&cfg).Error
	return cfg, err
}

func (r *siteConfigRepository) Update(ctx context.Context, cfg model.SiteConfig, expectedVersion int64) (model.SiteConfig, error) {
	if _, err := r.Get(ctx); err != nil {
		return model.SiteConfig{}, err
	}
	res := r.db.WithContext(ctx).
		Model(&model.SiteConfig{}).
		Where("id = ? AND version = ?", model.SiteConfigID, expectedVersion).
		Updates(map[string]interface{}{
			"version":               gorm.Expr("version + 1"),
			"listing_price_cents":   cfg.ListingPriceCents,
			"listing_duration_days": cfg.ListingDurationDays,
			"enable_payments":       cfg.EnablePayments,
			"site_name":             cfg.SiteName,
			"contact_email":         cfg.ContactEmail,
			"updated_by":            cfg.UpdatedBy,
		})
	if res.Error != nil {
		return model.SiteConfig{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.SiteConfig{}, apperr.ErrConflict
	}
	return r.Get(ctx)
}
