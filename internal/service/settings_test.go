package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

func TestSettings_VersionedUpdate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	cfg, err := e.settings.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cfg.ListingPriceCents)
	assert.Equal(t, 60, cfg.ListingDurationDays)

	price := int64(1500)
	name := "Tongass Classifieds"
	updated, err := e.settings.Update(ctx, SettingsUpdate{Version: cfg.Version, ListingPriceCents: &price, SiteName: &name}, admin("root"))
	require.NoError(t, err)
	assert.Equal(t, cfg.Version+1, updated.Version)
	assert.Equal(t, price, updated.ListingPriceCents)
	assert.Equal(t, name, updated.SiteName)
	assert.Equal(t, 60, updated.ListingDurationDays)
	assert.Equal(t, "root", updated.UpdatedBy)

	// 旧版本号写入冲突
	_, err = e.settings.Update(ctx, SettingsUpdate{Version: cfg.Version, ListingPriceCents: &price}, admin("root"))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSettings_UpdateValidationAndAuth(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	days := 0
	email := "nope"

	_, err := e.settings.Update(ctx, SettingsUpdate{Version: 1}, user("u1"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.settings.Update(ctx, SettingsUpdate{Version: 1, ListingDurationDays: &days, ContactEmail: &email}, admin("root"))
	ve, ok := apperr.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "listing_duration_days")
	assert.Contains(t, ve.Fields, "contact_email")

	_, err = e.settings.Update(ctx, SettingsUpdate{}, admin("root"))
	ve, ok = apperr.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "version")
}
