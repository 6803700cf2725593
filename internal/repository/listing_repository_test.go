package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newListing(userID string, mods ...func(*model.Listing)) *model.Listing {
	l := &model.Listing{
		ID:            uuid.NewString(),
		UserID:        userID,
		Category:      "boats",
		Region:        "kenai",
		Title:         "18ft Lund skiff",
		Price:         4500,
		Description:   "Runs great, trailer included",
		ContactName:   "Sam",
		ContactEmail:  "sam@example.com",
		Status:        model.ListingStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		CreatedAt:     baseTime,
	}
	for _, m := range mods {
		m(l)
	}
	return l
}

func eligible(l *model.Listing) {
	l.Status = model.ListingStatusActive
	l.PaymentStatus = model.PaymentStatusPaid
}

func TestListingRepository_CreateAndGet(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	l := newListing("u1", func(l *model.Listing) { l.Images = []string{"a.jpg", "b.jpg"} })
	require.NoError(t, repo.Create(ctx, l))

	got, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.Images)
	assert.Nil(t, got.ExpiresAt)
	assert.Nil(t, got.ContactPhone)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListingRepository_GetOwned_HidesOtherOwners(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	l := newListing("owner")
	require.NoError(t, repo.Create(ctx, l))

	_, err := repo.GetOwned(ctx, l.ID, "owner")
	require.NoError(t, err)

	_, errOther := repo.GetOwned(ctx, l.ID, "intruder")
	_, errMissing := repo.GetOwned(ctx, uuid.NewString(), "owner")
	assert.ErrorIs(t, errOther, apperr.ErrNotFound)
	assert.Equal(t, errMissing, errOther)
}

func TestListingRepository_Activate_IsIdempotent(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	l := newListing("u1")
	require.NoError(t, repo.Create(ctx, l))

	first := baseTime.Add(time.Hour)
	ok, err := repo.Activate(ctx, l.ID, first.Add(model.ListingDuration), first)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusActive, got.Status)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(first.Add(model.ListingDuration)))

	later := first.Add(72 * time.Hour)
	ok, err = repo.Activate(ctx, l.ID, later.Add(model.ListingDuration), later)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, again.ExpiresAt.Equal(*got.ExpiresAt), "expires_at must not move on repeat activation")
	assert.True(t, again.CreatedAt.Equal(baseTime))
}

func TestListingRepository_Activate_RejectedIsConflict(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	l := newListing("u1", func(l *model.Listing) { l.Status = model.ListingStatusRejected })
	require.NoError(t, repo.Create(ctx, l))

	ok, err := repo.Activate(ctx, l.ID, baseTime, baseTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListingRepository_Approve(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()
	exp := baseTime.Add(model.ListingDuration)

	unpaid := newListing("u1")
	paid := newListing("u1", func(l *model.Listing) { l.PaymentStatus = model.PaymentStatusPaid })
	require.NoError(t, repo.Create(ctx, unpaid))
	require.NoError(t, repo.Create(ctx, paid))

	ok, err := repo.Approve(ctx, unpaid.ID, exp, baseTime)
	require.NoError(t, err)
	require.True(t, ok)
	got, _ := repo.GetByID(ctx, unpaid.ID)
	assert.Equal(t, model.ListingStatusActive, got.Status)
	assert.Nil(t, got.ExpiresAt, "unpaid approval leaves expires_at unset")

	ok, err = repo.Approve(ctx, paid.ID, exp, baseTime)
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = repo.GetByID(ctx, paid.ID)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(exp))

	ok, err = repo.Approve(ctx, paid.ID, exp.Add(24*time.Hour), baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = repo.GetByID(ctx, paid.ID)
	assert.True(t, got.ExpiresAt.Equal(exp))
}

func TestListingRepository_Reject(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	l := newListing("u1")
	active := newListing("u1", eligible)
	require.NoError(t, repo.Create(ctx, l))
	require.NoError(t, repo.Create(ctx, active))

	ok, err := repo.Reject(ctx, l.ID, baseTime)
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ := repo.GetByID(ctx, l.ID)
	assert.Equal(t, model.ListingStatusRejected, got.Status)
	assert.Nil(t, got.ExpiresAt)

	ok, err = repo.Reject(ctx, active.ID, baseTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListingRepository_Browse_OnlyEligible(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()
	now := baseTime.Add(time.Hour)
	future := now.Add(model.ListingDuration)
	past := now.Add(-time.Minute)

	visible := newListing("u1", eligible, func(l *model.Listing) { l.ExpiresAt = &future })
	pending := newListing("u1")
	unpaid := newListing("u1", func(l *model.Listing) { l.Status = model.ListingStatusActive })
	lapsed := newListing("u1", eligible, func(l *model.Listing) { l.ExpiresAt = &past })
	for _, l := range []*model.Listing{visible, pending, unpaid, lapsed} {
		require.NoError(t, repo.Create(ctx, l))
	}

	list, total, err := repo.Browse(ctx, BrowseFilter{}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, visible.ID, list[0].ID)

	_, err = repo.Activate(ctx, unpaid.ID, future, now)
	require.NoError(t, err)
	_, total, err = repo.Browse(ctx, BrowseFilter{}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestListingRepository_Browse_FiltersAndSort(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	mk := func(title, category, region string, price float64, age time.Duration) *model.Listing {
		return newListing("u1", eligible, func(l *model.Listing) {
			l.Title, l.Category, l.Region, l.Price = title, category, region, price
			l.CreatedAt = baseTime.Add(-age)
		})
	}
	skiff := mk("Aluminum skiff", "boats", "kenai", 4500, 3*time.Hour)
	truck := mk("F-150 truck", "vehicles", "anchorage", 12000, 2*time.Hour)
	cabin := mk("Cabin on 5 acres", "homes", "kenai", 180000, time.Hour)
	promo := mk("50% off guide trips", "guides", "tongass", 300, 4*time.Hour)
	for _, l := range []*model.Listing{skiff, truck, cabin, promo} {
		require.NoError(t, repo.Create(ctx, l))
	}

	ids := func(list []*model.Listing) []string {
		out := make([]string, len(list))
		for i, l := range list {
			out[i] = l.ID
		}
		return out
	}

	list, _, err := repo.Browse(ctx, BrowseFilter{Region: "kenai"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{cabin.ID, skiff.ID}, ids(list))

	list, _, err = repo.Browse(ctx, BrowseFilter{Category: "vehicles"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{truck.ID}, ids(list))

	minP, maxP := 1000.0, 20000.0
	list, _, err = repo.Browse(ctx, BrowseFilter{MinPrice: &minP, MaxPrice: &maxP, Sort: "price-low"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{skiff.ID, truck.ID}, ids(list))

	list, _, err = repo.Browse(ctx, BrowseFilter{Search: "SKIFF"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{skiff.ID}, ids(list))

	list, _, err = repo.Browse(ctx, BrowseFilter{Search: "50%"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{promo.ID}, ids(list))

	list, _, err = repo.Browse(ctx, BrowseFilter{Sort: "oldest"}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, []string{promo.ID, skiff.ID, truck.ID, cabin.ID}, ids(list))

	list, total, err := repo.Browse(ctx, BrowseFilter{Sort: "price-high", Page: 2, PageSize: 1}, baseTime)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Equal(t, []string{truck.ID}, ids(list))
}

func TestListingRepository_ExpireBeforeAndStats(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()
	past := baseTime.Add(-time.Hour)
	future := baseTime.Add(time.Hour)

	old := newListing("u1", eligible, func(l *model.Listing) { l.ExpiresAt = &past })
	live := newListing("u2", eligible, func(l *model.Listing) { l.ExpiresAt = &future })
	pending := newListing("u2")
	for _, l := range []*model.Listing{old, live, pending} {
		require.NoError(t, repo.Create(ctx, l))
	}

	stats, err := repo.Stats(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, ListingStats{Total: 3, Eligible: 1, Pending: 1, Sellers: 2}, stats)

	n, err := repo.ExpireBefore(ctx, baseTime)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, _ := repo.GetByID(ctx, old.ID)
	assert.Equal(t, model.ListingStatusExpired, got.Status)
}

func TestListingRepository_SetImagesAndDelete(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()

	l := newListing("u1")
	require.NoError(t, repo.Create(ctx, l))
	require.NoError(t, repo.SetImages(ctx, l.ID, []string{"x", "y"}))

	got, _ := repo.GetByID(ctx, l.ID)
	assert.Equal(t, []string{"x", "y"}, got.Images)
	assert.Equal(t, "18ft Lund skiff", got.Title)

	require.NoError(t, repo.Delete(ctx, l.ID))
	assert.ErrorIs(t, repo.Delete(ctx, l.ID), apperr.ErrNotFound)
}

func TestListingRepository_CountEligibleByUser(t *testing.T) {
	repo := NewListingRepository(setupTestDB(t))
	ctx := context.Background()
	future := baseTime.Add(time.Hour)
	past := baseTime.Add(-time.Hour)

	for _, l := range []*model.Listing{
		newListing("u1", eligible),
		newListing("u1", eligible, func(l *model.Listing) { l.ExpiresAt = &future }),
		newListing("u1", eligible, func(l *model.Listing) { l.ExpiresAt = &past }),
		newListing("u1"),
		newListing("u1", func(l *model.Listing) { l.Status = model.ListingStatusActive }),
		newListing("u2", eligible),
	} {
		require.NoError(t, repo.Create(ctx, l))
	}

	n, err := repo.CountEligibleByUser(ctx, "u1", baseTime)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.CountEligibleByUser(ctx, "nobody", baseTime)
	require.NoError(t, err)
	assert.Zero(t, n)
}
