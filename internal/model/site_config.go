package model

import "time"

// SiteConfig 管理员可编辑的全局设置，单行 + 版本号
type SiteConfig struct {
	ID                  uint      `json:"-" gorm:"primaryKey;autoIncrement:false"`
	Version             int64     `json:"version" gorm:"not null;default:1"`
	ListingPriceCents   int64     `json:"listing_price_cents" gorm:"not null"`
	ListingDurationDays int       `json:"listing_duration_days" gorm:"not null"`
	EnablePayments      bool      `json:"enable_payments" gorm:"not null"`
	SiteName            string    `json:"site_name" gorm:"type:varchar(100)"`
	ContactEmail        string    `json:"contact_email" gorm:"type:varchar(255)"`
	UpdatedBy           string    `json:"updated_by" gorm:"type:varchar(36)"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (SiteConfig) TableName() string { return "site_config" }

// SiteConfigID 唯一一行的主键
const SiteConfigID = 1

// DefaultSiteConfig $10，60 天
func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		ID:                  SiteConfigID,
		Version:             1,
		ListingPriceCents:   1000,
		ListingDurationDays: 60,
		EnablePayments:      true,
		SiteName:            "Tongass Listings",
	}
}

// ListingDuration 激活有效期，非法值退回默认 60 天
func (c SiteConfig) ListingDuration() time.Duration {
	if c.ListingDurationDays <= 0 {
		return ListingDuration
	}
	return time.Duration(c.ListingDurationDays) * 24 * time.Hour
}

// ListingPrice 美元金额
func (c SiteConfig) ListingPrice() float64 {
	return float64(c.ListingPriceCents) / 100
}
