package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RoleStore 角色成员查询
type RoleStore interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RoleResolver 带短 TTL 缓存的管理员判定
type RoleResolver struct {
	store     RoleStore
	adminRole string
	cache     *expirable.LRU[string, bool]
}

func NewRoleResolver(store RoleStore, adminRole string, ttl time.Duration) *RoleResolver {
	if adminRole == "" {
		adminRole = "admin"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RoleResolver{
		store:     store,
		adminRole: adminRole,
		cache:     expirable.NewLRU[string, bool](4096, nil, ttl),
	}
}

// IsAdmin 查询失败时不缓存
func (r *RoleResolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if v, ok := r.cache.Get(userID); ok {
		return v, nil
	}
	ok, err := r.store.HasRole(ctx, userID, r.adminRole)
	if err != nil {
		return false, err
	}
	r.cache.Add(userID, ok)
	return ok, nil
}

// Forget 角色变更后主动失效
func (r *RoleResolver) Forget(userID string) { r.cache.Remove(userID) }
