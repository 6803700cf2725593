package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaskacg/tongass-listings/internal/model"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
)

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier("s3cret", "")
	ctx := context.Background()

	tok, err := IssueToken("s3cret", "", Identity{UserID: "u1", Email: "a@b.c"}, time.Hour)
	require.NoError(t, err)
	id, err := v.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Email: "a@b.c"}, id)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	wrong, _ := IssueToken("other", "", Identity{UserID: "u1"}, time.Hour)
	_, err = v.Verify(ctx, wrong)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	expired, _ := IssueToken("s3cret", "", Identity{UserID: "u1"}, -time.Minute)
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	noSub, _ := IssueToken("s3cret", "", Identity{}, time.Hour)
	_, err = v.Verify(ctx, noSub)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestJWTVerifier_RejectsNoneAndIssuerMismatch(t *testing.T) {
	ctx := context.Background()
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTVerifier("s3cret", "").Verify(ctx, unsigned)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	tok, _ := IssueToken("s3cret", "other-issuer", Identity{UserID: "u1"}, time.Hour)
	_, err = NewJWTVerifier("s3cret", "tongass").Verify(ctx, tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

type stubRoles struct {
	admins map[string]bool
	calls  atomic.Int32
	err    error
}

func (s *stubRoles) HasRole(_ context.Context, userID, role string) (bool, error) {
	s.calls.Add(1)
	if s.err != nil {
		return false, s.err
	}
	return role == "admin" && s.admins[userID], nil
}

func TestRoleResolver_CachesLookups(t *testing.T) {
	store := &stubRoles{admins: map[string]bool{"boss": true}}
	r := NewRoleResolver(store, "admin", time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := r.IsAdmin(ctx, "boss")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.EqualValues(t, 1, store.calls.Load())

	r.Forget("boss")
	_, _ = r.IsAdmin(ctx, "boss")
	assert.EqualValues(t, 2, store.calls.Load())

	ok, err := r.IsAdmin(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleResolver_ErrorsAreNotCached(t *testing.T) {
	store := &stubRoles{err: errors.New("db down")}
	r := NewRoleResolver(store, "admin", time.Minute)

	_, err := r.IsAdmin(context.Background(), "u1")
	assert.Error(t, err)
	_, _ = r.IsAdmin(context.Background(), "u1")
	assert.EqualValues(t, 2, store.calls.Load())
}

func TestCapability(t *testing.T) {
	pendingOwned := &model.Listing{UserID: "owner", Status: model.ListingStatusPending, PaymentStatus: model.PaymentStatusUnpaid}
	public := &model.Listing{UserID: "owner", Status: model.ListingStatusActive, PaymentStatus: model.PaymentStatusPaid}

	anon := Anonymous()
	assert.False(t, anon.Authenticated())
	assert.True(t, anon.CanRead(public))
	assert.False(t, anon.CanRead(pendingOwned))
	assert.False(t, anon.CanWrite(public))

	owner := NewCapability(Identity{UserID: "owner"}, false)
	assert.True(t, owner.CanRead(pendingOwned))
	assert.True(t, owner.CanWrite(pendingOwned))

	other := NewCapability(Identity{UserID: "other"}, false)
	assert.False(t, other.CanRead(pendingOwned))
	assert.False(t, other.CanWrite(public))

	admin := NewCapability(Identity{UserID: "boss"}, true)
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.CanWrite(pendingOwned))

	assert.False(t, NewCapability(Identity{}, true).IsAdmin())
}
