package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/alaskacg/tongass-listings/internal/model"
)

// PaymentRepository 支付记录仓储接口
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByRef(ctx context.Context, ref string) (*model.Payment, error)
	// MarkCompleted 仅 pending -> completed；返回是否发生了状态变化
	MarkCompleted(ctx context.Context, ref string, at time.Time) (bool, error)
	// MarkFailed 仅 pending -> failed
	MarkFailed(ctx context.Context, ref string) (bool, error)
	ListByStatus(ctx context.Context, status string, offset, limit int) ([]*model.Payment, error)
	// Revenue 已完成支付的总额
	Revenue(ctx context.Context) (float64, error)
}

type paymentRepository struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepository{db: db} }

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *paymentRepository) GetByRef(ctx context.Context, ref string) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).Where("external_ref = ?", ref).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *paymentRepository) MarkCompleted(ctx context.Context, ref string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("external_ref = ? AND status = ?", ref, model.PaymentPending).
		Updates(map[string]interface{}{"status": model.PaymentCompleted, "completed_at": at, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *paymentRepository) MarkFailed(ctx context.Context, ref string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("external_ref = ? AND status = ?", ref, model.PaymentPending).
		Update("status", model.PaymentFailed)
	return res.RowsAffected > 0, res.Error
}

func (r *paymentRepository) ListByStatus(ctx context.Context, status string, offset, limit int) ([]*model.Payment, error) {
	var res []*model.Payment
	q := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return res, q.Find(&res).Error
}

func (r *paymentRepository) Revenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("status = ?", model.PaymentCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
