package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaskacg/tongass-listings/internal/model"
)

func TestExpirySweeper(t *testing.T) {
	setNow(t, baseTime)
	e := newTestEnv(t)
	ctx := context.Background()
	live := e.insertListing(t, "u1", activePaid)
	pending := e.insertListing(t, "u1")

	sweeper := NewExpirySweeper(e.listings, nil, e.metrics)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	setNow(t, baseTime.Add(model.ListingDuration+time.Minute))
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := e.listings.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusExpired, got.Status)
	got, err = e.listings.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPending, got.Status)
}
