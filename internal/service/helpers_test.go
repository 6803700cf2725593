package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/ecosystem"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/observability"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/internal/storage"
)

const siteTag = "tongass-listings"

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// setNow 固定时钟，测试结束后恢复
func setNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = prev })
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return nowFunc() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// fakeHub 记录收到的 payload
type fakeHub struct {
	srv      *httptest.Server
	mu       sync.Mutex
	payloads []ecosystem.Payload
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	h := &fakeHub{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p ecosystem.Payload
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &p); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.payloads = append(h.payloads, p)
		h.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"ok":true,"source_id":%q}`, p.SourceID)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHub) received() []ecosystem.Payload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ecosystem.Payload(nil), h.payloads...)
}

type testEnv struct {
	db          *gorm.DB
	listings    repository.ListingRepository
	payments    repository.PaymentRepository
	store       *storage.MemoryStore
	hub         *fakeHub
	metrics     *observability.Metrics
	settings    SettingsService
	lifecycle   LifecycleService
	submission  SubmissionService
	syndication SyndicationService
	listing     ListingService
	payment     PaymentService
	admin       AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupDB(t)
	metrics, err := observability.NewMetrics("test", prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	e := &testEnv{
		db:       db,
		listings: repository.NewListingRepository(db),
		payments: repository.NewPaymentRepository(db),
		store:    storage.NewMemoryStore("http://localhost:8080/media"),
		hub:      newFakeHub(t),
		metrics:  metrics,
	}
	e.settings = NewSettingsService(repository.NewSiteConfigRepository(db))
	e.lifecycle = NewLifecycleService(e.listings, e.settings, nil, metrics, nil)
	e.submission = NewSubmissionService(e.listings, e.store, metrics)
	e.syndication = NewSyndicationService(e.listings, ecosystem.NewClient(e.hub.srv.URL, time.Second, ecosystem.WithObserver(metrics)), siteTag, 2*time.Second, metrics)
	e.listing = NewListingService(e.listings, e.store, nil, metrics)
	e.payment = NewPaymentService(e.payments, e.listings, e.lifecycle, e.settings, "usd", "")
	e.admin = NewAdminService(e.listings, e.payments)
	return e
}

func user(id string) auth.Capability {
	return auth.NewCapability(auth.Identity{UserID: id, Email: id + "@example.com"}, false)
}

func admin(id string) auth.Capability {
	return auth.NewCapability(auth.Identity{UserID: id}, true)
}

func validInput() SubmitInput {
	return SubmitInput{
		Category:     "boats",
		Region:       "kenai",
		Title:        "18ft Lund skiff",
		Price:        "4500",
		Description:  "Runs great, trailer included",
		ContactName:  "Sam",
		ContactEmail: "sam@example.com",
		ContactPhone: "907-555-0100",
	}
}

func image(name, contentType string, size int) ImageFile {
	data := []byte(strings.Repeat(name, size/len(name)+1))[:size]
	return ImageFile{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(size),
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(string(data))), nil },
	}
}

// insertListing 直接落库，跳过发布流程
func (e *testEnv) insertListing(t *testing.T, owner string, mods ...func(*model.Listing)) *model.Listing {
	t.Helper()
	l := &model.Listing{
		ID:            uuid.NewString(),
		UserID:        owner,
		Category:      "boats",
		Region:        "kenai",
		Title:         "18ft Lund skiff",
		Price:         4500,
		Description:   "Runs great",
		Images:        []string{},
		ContactName:   "Sam",
		ContactEmail:  "sam@example.com",
		Status:        model.ListingStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		CreatedAt:     nowFunc(),
	}
	for _, m := range mods {
		m(l)
	}
	if err := e.listings.Create(context.Background(), l); err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	return l
}

func activePaid(l *model.Listing) {
	l.Status = model.ListingStatusActive
	l.PaymentStatus = model.PaymentStatusPaid
	exp := l.CreatedAt.Add(model.ListingDuration)
	l.ExpiresAt = &exp
}

func (e *testEnv) countListings(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&model.Listing{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
