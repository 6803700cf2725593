package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// WebhookEvent 支付方回调
type WebhookEvent struct {
	PaymentReference string `json:"payment_reference" validate:"required,max=100"`
	ListingID        string `json:"listing_id" validate:"required"`
	Status           string `json:"status" validate:"required,oneof=completed failed"`
}

// WebhookResult 回调处理结果
type WebhookResult struct {
	Payment *model.Payment `json:"payment"`
	Listing *model.Listing `json:"listing,omitempty"`
	// Activated 为 false 且 Reason 非空时，款已记账但 listing 无法上线，需要人工退款
	Activated bool   `json:"activated"`
	Reason    string `json:"reason,omitempty"`
}

// ReasonNotActivatable 付款完成时 listing 已被拒绝、过期或删除
const ReasonNotActivatable = "payment recorded but listing cannot be activated"

// PaymentService 结账与支付回调
type PaymentService interface {
	// Checkout 为本人未付款且 pending/active 的 listing 创建待支付记录；站点关闭收费时直接激活
	Checkout(ctx context.Context, listingID string, capa auth.Capability) (*model.Payment, error)
	// VerifyWebhook 校验 body 的 HMAC 签名；未配置 secret 时一律拒绝
	VerifyWebhook(body []byte, signature string) error
	// HandleWebhook 重放安全
	HandleWebhook(ctx context.Context, ev WebhookEvent) (*WebhookResult, error)
}

type paymentService struct {
	payments  repository.PaymentRepository
	listings  repository.ListingRepository
	lifecycle LifecycleService
	settings  SettingsService
	currency  string
	secret    []byte
}

func NewPaymentService(payments repository.PaymentRepository, listings repository.ListingRepository, lifecycle LifecycleService, settings SettingsService, currency, webhookSecret string) PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &paymentService{
		payments:  payments,
		listings:  listings,
		lifecycle: lifecycle,
		settings:  settings,
		currency:  currency,
		secret:    []byte(webhookSecret),
	}
}

func (s *paymentService) Checkout(ctx context.Context, listingID string, capa auth.Capability) (*model.Payment, error) {
	if !capa.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	l, err := s.listings.GetOwned(ctx, listingID, capa.Identity().UserID)
	if err != nil {
		return nil, err
	}
	if l.PaymentStatus == model.PaymentStatusPaid {
		return nil, fmt.Errorf("listing already paid: %w", apperr.ErrConflict)
	}
	// 审核通过但未付款的 listing 仍是 active，同样允许结账
	if l.Status != model.ListingStatusPending && l.Status != model.ListingStatusActive {
		return nil, fmt.Errorf("cannot check out listing in status %q: %w", l.Status, apperr.ErrConflict)
	}

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	now := nowFunc()
	p := &model.Payment{
		ID:          uuid.NewString(),
		ListingID:   l.ID,
		UserID:      l.UserID,
		Amount:      cfg.ListingPrice(),
		Currency:    s.currency,
		Status:      model.PaymentPending,
		ExternalRef: "pay_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !cfg.EnablePayments {
		p.Amount = 0
		p.Status = model.PaymentCompleted
		p.CompletedAt = &now
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if p.Status == model.PaymentCompleted {
		if _, err := s.lifecycle.ConfirmPayment(ctx, l.ID); err != nil {
			return nil, err
		}
	}
	logger.Info("checkout created", zap.String("listing_id", l.ID), zap.String("payment_ref", p.ExternalRef), zap.Float64("amount", p.Amount))
	return p, nil
}

func (s *paymentService) VerifyWebhook(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return fmt.Errorf("webhook secret not configured: %w", apperr.ErrUnauthorized)
	}
	want, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(want) == 0 {
		return fmt.Errorf("bad webhook signature: %w", apperr.ErrUnauthorized)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return fmt.Errorf("webhook signature mismatch: %w", apperr.ErrUnauthorized)
	}
	return nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, ev WebhookEvent) (*WebhookResult, error) {
	if err := validateStruct(ev).OrNil(); err != nil {
		return nil, err
	}
	p, err := s.payments.GetByRef(ctx, ev.PaymentReference)
	if err != nil {
		return nil, err
	}
	if p.ListingID != ev.ListingID {
		ve := apperr.NewValidationError()
		ve.Add("listing_id", "does not match payment")
		return nil, ve
	}

	switch ev.Status {
	case model.PaymentCompleted:
		if _, err := s.payments.MarkCompleted(ctx, p.ExternalRef, nowFunc()); err != nil {
			return nil, fmt.Errorf("complete payment: %w", err)
		}
	case model.PaymentFailed:
		if _, err := s.payments.MarkFailed(ctx, p.ExternalRef); err != nil {
			return nil, fmt.Errorf("fail payment: %w", err)
		}
	}
	// 重新读取：条件更新未命中时以库里的最终状态为准
	if p, err = s.payments.GetByRef(ctx, ev.PaymentReference); err != nil {
		return nil, err
	}
	if p.Status != ev.Status {
		return nil, fmt.Errorf("payment %s already %s: %w", p.ExternalRef, p.Status, apperr.ErrConflict)
	}

	res := &WebhookResult{Payment: p}
	if p.Status == model.PaymentCompleted {
		// 重放时 ConfirmPayment 同样幂等
		l, err := s.lifecycle.ConfirmPayment(ctx, p.ListingID)
		switch {
		case err == nil:
			res.Listing = l
			res.Activated = true
		case errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrNotFound):
			// 已记账；返回成功以停止支付方重试
			res.Reason = ReasonNotActivatable
			if l, gerr := s.listings.GetByID(ctx, p.ListingID); gerr == nil {
				res.Listing = l
			}
			logger.Error("payment completed for listing that cannot be activated",
				zap.String("payment_ref", p.ExternalRef),
				zap.String("listing_id", p.ListingID),
				zap.Float64("amount", p.Amount),
				zap.Error(err))
		default:
			return nil, err
		}
	}
	logger.Info("payment webhook handled", zap.String("payment_ref", p.ExternalRef), zap.String("listing_id", p.ListingID), zap.String("status", p.Status))
	return res, nil
}
