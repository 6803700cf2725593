package model

import "time"

// Payment 支付记录（由支付方回调驱动状态）
type Payment struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ListingID   string     `json:"listing_id" gorm:"type:varchar(36);index;not null"`
	UserID      string     `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Amount      float64    `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency    string     `json:"currency" gorm:"type:varchar(8);not null;default:usd"`
	Status      string     `json:"status" gorm:"type:varchar(16);index;not null;default:pending"`
	ExternalRef string     `json:"external_ref" gorm:"type:varchar(100);uniqueIndex;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (Payment) TableName() string { return "payments" }

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)
