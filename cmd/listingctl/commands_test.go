package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/internal/config"
	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/internal/repository"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	dsn := filepath.Join(dir, "ctl.db")
	t.Setenv("TONGASS_AUTH_JWT_SECRET", "ctl-secret")
	t.Setenv("TONGASS_DATABASE_DRIVER", "sqlite")
	t.Setenv("TONGASS_DATABASE_DSN", dsn)
	return dsn
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateAndSettingsShow(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	out, err = execute(t, "settings", "show")
	require.NoError(t, err)
	var cfg model.SiteConfig
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, int64(1000), cfg.ListingPriceCents)
	assert.Equal(t, 60, cfg.ListingDurationDays)
	assert.True(t, cfg.EnablePayments)
}

func TestGrantRevokeRole(t *testing.T) {
	dsn := setupEnv(t)
	_, err := execute(t, "migrate")
	require.NoError(t, err)

	out, err := execute(t, "grant-role", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, `granted "admin" user-1`)

	db, err := repository.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer repository.Close(db)
	roles := repository.NewRoleRepository(db)

	ok, err := roles.HasRole(context.Background(), "user-1", "admin")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = execute(t, "revoke-role", "user-1")
	require.NoError(t, err)
	ok, err = roles.HasRole(context.Background(), "user-1", "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = execute(t, "grant-role")
	assert.Error(t, err)
}

func TestSweepExpired(t *testing.T) {
	dsn := setupEnv(t)
	_, err := execute(t, "migrate")
	require.NoError(t, err)

	db, err := repository.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer repository.Close(db)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	for i, exp := range []time.Time{past, future} {
		require.NoError(t, repository.NewListingRepository(db).Create(context.Background(), &model.Listing{
			ID:            []string{"stale", "fresh"}[i],
			UserID:        "u1",
			Category:      "boats",
			Region:        "kenai",
			Title:         "skiff",
			Description:   "d",
			Images:        []string{},
			ContactName:   "Sam",
			ContactEmail:  "sam@example.com",
			Status:        model.ListingStatusActive,
			PaymentStatus: model.PaymentStatusPaid,
			CreatedAt:     past.Add(-time.Hour),
			ExpiresAt:     &exp,
		}))
	}

	out, err := execute(t, "sweep-expired")
	require.NoError(t, err)
	assert.Contains(t, out, "expired 1 listing(s)")

	stale, err := repository.NewListingRepository(db).GetByID(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusExpired, stale.Status)
	fresh, err := repository.NewListingRepository(db).GetByID(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusActive, fresh.Status)
}

func TestToken(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "token", "user-9", "--email", "u9@example.com", "--ttl", "1h")
	require.NoError(t, err)

	id, err := auth.NewJWTVerifier("ctl-secret", "").Verify(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-9", id.UserID)
	assert.Equal(t, "u9@example.com", id.Email)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
