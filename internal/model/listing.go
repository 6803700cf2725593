package model

import (
	"time"
)

// Listing 分类信息（广告）主记录
type Listing struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID        string     `json:"user_id" gorm:"type:varchar(36);index:idx_listing_user_created;not null"`
	Category      string     `json:"category" gorm:"type:varchar(32);index:idx_listing_browse,priority:3;not null"`
	Region        string     `json:"region" gorm:"type:varchar(32);index:idx_listing_browse,priority:4;not null"`
	Title         string     `json:"title" gorm:"type:varchar(100);not null"`
	Price         float64    `json:"price" gorm:"type:decimal(12,2);not null"`
	Description   string     `json:"description" gorm:"type:text;not null"`
	Images        []string   `json:"images" gorm:"serializer:json;type:text"`
	ContactName   string     `json:"contact_name" gorm:"type:varchar(100);not null"`
	ContactEmail  string     `json:"contact_email" gorm:"type:varchar(255);not null"`
	ContactPhone  *string    `json:"contact_phone" gorm:"type:varchar(20)"`
	Status        string     `json:"status" gorm:"type:varchar(16);index:idx_listing_browse,priority:1;not null;default:pending"`
	PaymentStatus string     `json:"payment_status" gorm:"type:varchar(16);index:idx_listing_browse,priority:2;not null;default:unpaid"`
	CreatedAt     time.Time  `json:"created_at" gorm:"index:idx_listing_user_created;not null"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// TableName 指定表名
func (Listing) TableName() string {
	return "listings"
}

// ListingStatus 状态常量
const (
	ListingStatusPending  = "pending"
	ListingStatusActive   = "active"
	ListingStatusRejected = "rejected"
	ListingStatusExpired  = "expired"
)

// PaymentStatus 付款状态常量
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// ListingDuration 首次激活后的有效期
const ListingDuration = 60 * 24 * time.Hour

// Eligible active 且 paid，才会出现在公开浏览里并允许同步到 hub
func (l *Listing) Eligible() bool {
	return l.Status == ListingStatusActive && l.PaymentStatus == PaymentStatusPaid
}

// DisplayStatus 展示用状态；过期由 expires_at 推导，不依赖后台任务
func (l *Listing) DisplayStatus(now time.Time) string {
	if l.Status == ListingStatusActive && l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return ListingStatusExpired
	}
	return l.Status
}

// Categories 固定分类
var Categories = []string{
	"vehicles", "boats", "homes", "land", "rentals",
	"mining", "guides", "excavation", "general",
}

// Regions 固定地区
var Regions = []string{
	"kenai", "anchorage", "tongass", "alcan", "bristol",
	"bethel", "prudhoe", "chugach", "statewide",
}

func IsCategory(v string) bool { return contains(Categories, v) }
func IsRegion(v string) bool   { return contains(Regions, v) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
