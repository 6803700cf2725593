package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/ecosystem"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// 未同步的原因，原样返回给调用方
const (
	ReasonNotEligible    = "Listing not active or paid"
	ReasonHubUnavailable = "Ecosystem hub unavailable"
)

// SyncResult 同步结果；hub 不可用也是 Success=true
type SyncResult struct {
	Success           bool            `json:"success"`
	Synced            bool            `json:"synced"`
	Reason            string          `json:"reason,omitempty"`
	EcosystemResponse json.RawMessage `json:"ecosystem_response,omitempty"`
}

// SyndicationService 把 active + paid 的信息转发到 ecosystem hub
type SyndicationService interface {
	// SyncListing 仅限本人；不存在与非本人同样返回 apperr.ErrNotFound
	SyncListing(ctx context.Context, listingID string, capa auth.Capability) (SyncResult, error)
	// Forward 对已加载的 listing 做资格检查并单次投递，从不返回错误
	Forward(ctx context.Context, l *model.Listing) SyncResult
}

type syndicationService struct {
	repo      repository.ListingRepository
	publisher ecosystem.Publisher
	siteTag   string
	timeout   time.Duration
	metrics   *observability.Metrics
}

func NewSyndicationService(repo repository.ListingRepository, publisher ecosystem.Publisher, siteTag string, timeout time.Duration, metrics *observability.Metrics) SyndicationService {
	return &syndicationService{repo: repo, publisher: publisher, siteTag: siteTag, timeout: timeout, metrics: metrics}
}

func (s *syndicationService) SyncListing(ctx context.Context, listingID string, capa auth.Capability) (SyncResult, error) {
	if !capa.Authenticated() {
		return SyncResult{}, apperr.ErrUnauthorized
	}
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		ve := apperr.NewValidationError()
		ve.Add("listing_id", "is required")
		return SyncResult{}, ve
	}
	l, err := s.repo.GetOwned(ctx, listingID, capa.Identity().UserID)
	if err != nil {
		return SyncResult{}, err
	}
	return s.Forward(ctx, l), nil
}

func (s *syndicationService) Forward(ctx context.Context, l *model.Listing) SyncResult {
	if !l.Eligible() {
		s.metrics.SyncOutcome(observability.SyncIneligible)
		return SyncResult{Success: true, Synced: false, Reason: ReasonNotEligible}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.publisher.Publish(ctx, ecosystem.NewPayload(s.siteTag, l))
	if err != nil {
		s.metrics.SyncOutcome(observability.SyncHubUnavailable)
		logger.Warn("ecosystem sync failed", zap.String("listing_id", l.ID), zap.Error(err))
		return SyncResult{Success: true, Synced: false, Reason: ReasonHubUnavailable}
	}
	s.metrics.SyncOutcome(observability.SyncSynced)
	return SyncResult{Success: true, Synced: true, EcosystemResponse: resp}
}
