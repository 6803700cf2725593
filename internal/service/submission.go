package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/internal/storage"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

const (
	// MaxImages 每条信息最多图片数
	MaxImages = 5
	// MaxImageBytes 单张图片上限 10MB
	MaxImageBytes = 10 << 20

	maxPrice = 9_999_999_999.99
)

// 单张图片被拒的原因
const (
	ImageRejectWrongType = "not an image"
	ImageRejectTooLarge  = "image exceeds 10MB"
)

// SubmitInput 发布表单；Price 保留原始字符串，由服务端解析
type SubmitInput struct {
	Category     string `json:"category" form:"category" validate:"required,listing_category"`
	Region       string `json:"region" form:"region" validate:"required,listing_region"`
	Title        string `json:"title" form:"title" validate:"required,max=100"`
	Price        string `json:"price" form:"price"`
	Description  string `json:"description" form:"description" validate:"required,max=2000"`
	ContactName  string `json:"contact_name" form:"contact_name" validate:"required,max=100"`
	ContactEmail string `json:"contact_email" form:"contact_email" validate:"required,email,max=255"`
	ContactPhone string `json:"contact_phone" form:"contact_phone" validate:"omitempty,max=20"`
}

func (in *SubmitInput) trim() {
	for _, f := range []*string{&in.Category, &in.Region, &in.Title, &in.Price, &in.Description, &in.ContactName, &in.ContactEmail, &in.ContactPhone} {
		*f = strings.TrimSpace(*f)
	}
}

// ImageFile 上传的单个文件；Open 可多次调用
type ImageFile struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// ImageRejection 被拒文件及原因
type ImageRejection struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// SubmitResult 发布结果；FailedUploads 为通过校验但上传失败的数量
type SubmitResult struct {
	Listing       *model.Listing   `json:"listing"`
	Rejected      []ImageRejection `json:"rejected_images,omitempty"`
	FailedUploads int              `json:"failed_uploads,omitempty"`
}

// SubmissionService 发布新信息
type SubmissionService interface {
	// Submit 校验失败不落库；图片上传尽力而为，全部失败时返回 ErrUpstreamUnavailable 且 result 中带已创建的 listing
	Submit(ctx context.Context, in SubmitInput, images []ImageFile, capa auth.Capability) (*SubmitResult, error)
}

type submissionService struct {
	repo    repository.ListingRepository
	store   storage.Store
	metrics *observability.Metrics
}

func NewSubmissionService(repo repository.ListingRepository, store storage.Store, metrics *observability.Metrics) SubmissionService {
	return &submissionService{repo: repo, store: store, metrics: metrics}
}

func (s *submissionService) Submit(ctx context.Context, in SubmitInput, images []ImageFile, capa auth.Capability) (*SubmitResult, error) {
	if !capa.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	in.trim()

	ve := validateStruct(in)
	price, msg := parsePrice(in.Price)
	if msg != "" {
		ve.Add("price", msg)
	}
	if len(images) > MaxImages {
		ve.Add("images", fmt.Sprintf("too many images (max %d)", MaxImages))
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	accepted, rejected := screenImages(images)

	now := nowFunc()
	l := &model.Listing{
		ID:            uuid.NewString(),
		UserID:        capa.Identity().UserID,
		Category:      in.Category,
		Region:        in.Region,
		Title:         in.Title,
		Price:         price,
		Description:   in.Description,
		Images:        []string{},
		ContactName:   in.ContactName,
		ContactEmail:  in.ContactEmail,
		Status:        model.ListingStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.ContactPhone != "" {
		phone := in.ContactPhone
		l.ContactPhone = &phone
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	res := &SubmitResult{Listing: l, Rejected: rejected}
	for _, r := range rejected {
		logger.Info("image rejected", zap.String("listing_id", l.ID), zap.String("file", r.Filename), zap.String("reason", r.Reason))
	}
	if len(accepted) == 0 {
		return res, nil
	}

	urls := make([]string, 0, len(accepted))
	for _, img := range accepted {
		url, err := s.upload(ctx, l, img)
		s.metrics.Upload(err == nil)
		if err != nil {
			res.FailedUploads++
			logger.Warn("image upload failed", zap.String("listing_id", l.ID), zap.String("file", img.Filename), zap.Error(err))
			continue
		}
		urls = append(urls, url)
	}
	if len(urls) == 0 {
		return res, fmt.Errorf("all %d image uploads failed: %w", len(accepted), apperr.ErrUpstreamUnavailable)
	}
	if err := s.repo.SetImages(ctx, l.ID, urls); err != nil {
		return res, fmt.Errorf("save listing images: %w", err)
	}
	l.Images = urls
	return res, nil
}

func (s *submissionService) upload(ctx context.Context, l *model.Listing, img ImageFile) (string, error) {
	rc, err := img.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", img.Filename, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", img.Filename, err)
	}
	if len(data) > MaxImageBytes {
		return "", errors.New("image exceeds 10MB")
	}
	key := storage.ObjectKey(l.UserID, l.ID, img.Filename, data)
	if err := s.store.Put(ctx, key, declaredType(img), data); err != nil {
		return "", err
	}
	return s.store.PublicURL(key), nil
}

// screenImages 按文件检查类型与大小，每个文件只报告第一个问题
func screenImages(images []ImageFile) (accepted []ImageFile, rejected []ImageRejection) {
	for _, img := range images {
		switch {
		case !strings.HasPrefix(declaredType(img), "image/"):
			rejected = append(rejected, ImageRejection{Filename: img.Filename, Reason: ImageRejectWrongType})
		case img.Size > MaxImageBytes:
			rejected = append(rejected, ImageRejection{Filename: img.Filename, Reason: ImageRejectTooLarge})
		default:
			accepted = append(accepted, img)
		}
	}
	return accepted, rejected
}

func declaredType(img ImageFile) string {
	return strings.ToLower(strings.TrimSpace(img.ContentType))
}

// parsePrice 返回错误信息而非 error，便于并入字段校验
func parsePrice(raw string) (float64, string) {
	if raw == "" {
		return 0, "is required"
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "must be a number"
	}
	if v < 0 {
		return 0, "must be greater than or equal to 0"
	}
	if v > maxPrice {
		return 0, "is too large"
	}
	return math.Round(v*100) / 100, ""
}
