package service

import (
	"context"
	"fmt"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

// DashboardStats 后台首页统计
type DashboardStats struct {
	repository.ListingStats
	Revenue float64 `json:"total_revenue"`
}

// AdminService 后台列表与统计
type AdminService interface {
	Listings(ctx context.Context, status string, page, pageSize int, capa auth.Capability) ([]ListingView, error)
	Payments(ctx context.Context, status string, page, pageSize int, capa auth.Capability) ([]*model.Payment, error)
	Stats(ctx context.Context, capa auth.Capability) (DashboardStats, error)
}

type adminService struct {
	listings repository.ListingRepository
	payments repository.PaymentRepository
}

func NewAdminService(listings repository.ListingRepository, payments repository.PaymentRepository) AdminService {
	return &adminService{listings: listings, payments: payments}
}

func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return (page - 1) * pageSize, pageSize
}

func (s *adminService) Listings(ctx context.Context, status string, page, pageSize int, capa auth.Capability) ([]ListingView, error) {
	if err := requireAdmin(capa); err != nil {
		return nil, err
	}
	switch status {
	case "", model.ListingStatusPending, model.ListingStatusActive, model.ListingStatusRejected, model.ListingStatusExpired:
	default:
		ve := apperr.NewValidationError()
		ve.Add("status", "unknown status")
		return nil, ve
	}
	offset, limit := pageBounds(page, pageSize)
	ls, err := s.listings.ListByStatus(ctx, status, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return viewsOf(ls, nowFunc()), nil
}

func (s *adminService) Payments(ctx context.Context, status string, page, pageSize int, capa auth.Capability) ([]*model.Payment, error) {
	if err := requireAdmin(capa); err != nil {
		return nil, err
	}
	switch status {
	case "", model.PaymentPending, model.PaymentCompleted, model.PaymentFailed:
	default:
		ve := apperr.NewValidationError()
		ve.Add("status", "unknown status")
		return nil, ve
	}
	offset, limit := pageBounds(page, pageSize)
	ps, err := s.payments.ListByStatus(ctx, status, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if ps == nil {
		ps = []*model.Payment{}
	}
	return ps, nil
}

func (s *adminService) Stats(ctx context.Context, capa auth.Capability) (DashboardStats, error) {
	if err := requireAdmin(capa); err != nil {
		return DashboardStats{}, err
	}
	ls, err := s.listings.Stats(ctx, nowFunc())
	if err != nil {
		return DashboardStats{}, fmt.Errorf("listing stats: %w", err)
	}
	revenue, err := s.payments.Revenue(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("revenue: %w", err)
	}
	return DashboardStats{ListingStats: ls, Revenue: revenue}, nil
}
