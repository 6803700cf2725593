package service

import (
	"context"
	"fmt"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/repository"
)

// SettingsUpdate 管理员修改站点设置；Version 为读取时拿到的版本号，nil 字段保持不变
type SettingsUpdate struct {
	Version             int64   `json:"version" validate:"required,min=1"`
	ListingPriceCents   *int64  `json:"listing_price_cents" validate:"omitempty,min=0,max=10000000"`
	ListingDurationDays *int    `json:"listing_duration_days" validate:"omitempty,min=1,max=365"`
	EnablePayments      *bool   `json:"enable_payments"`
	SiteName            *string `json:"site_name" validate:"omitempty,max=100"`
	ContactEmail        *string `json:"contact_email" validate:"omitempty,email,max=255"`
}

// SettingsService 站点设置（单行、带版本号）
type SettingsService interface {
	// Current 每个请求读取一次，调用方在整个请求内复用同一份快照
	Current(ctx context.Context) (model.SiteConfig, error)
	// Update 版本不匹配返回 apperr.ErrConflict
	Update(ctx context.Context, in SettingsUpdate, capa auth.Capability) (model.SiteConfig, error)
}

type settingsService struct {
	repo repository.SiteConfigRepository
}

func NewSettingsService(repo repository.SiteConfigRepository) SettingsService {
	return &settingsService{repo: repo}
}

func (s *settingsService) Current(ctx context.Context) (model.SiteConfig, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return model.SiteConfig{}, fmt.Errorf("load site config: %w", err)
	}
	return cfg, nil
}

func (s *settingsService) Update(ctx context.Context, in SettingsUpdate, capa auth.Capability) (model.SiteConfig, error) {
	if err := requireAdmin(capa); err != nil {
		return model.SiteConfig{}, err
	}
	if err := validateStruct(in).OrNil(); err != nil {
		return model.SiteConfig{}, err
	}

	cfg, err := s.Current(ctx)
	if err != nil {
		return model.SiteConfig{}, err
	}
	if in.ListingPriceCents != nil {
		cfg.ListingPriceCents = *in.ListingPriceCents
	}
	if in.ListingDurationDays != nil {
		cfg.ListingDurationDays = *in.ListingDurationDays
	}
	if in.EnablePayments != nil {
		cfg.EnablePayments = *in.EnablePayments
	}
	if in.SiteName != nil {
		cfg.SiteName = *in.SiteName
	}
	if in.ContactEmail != nil {
		cfg.ContactEmail = *in.ContactEmail
	}
	cfg.UpdatedBy = capa.Identity().UserID

	updated, err := s.repo.Update(ctx, cfg, in.Version)
	if err != nil {
		return model.SiteConfig{}, fmt.Errorf("update site config: %w", err)
	}
	return updated, nil
}
