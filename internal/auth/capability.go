package auth

import "github.com/alaskacg/tongass-listings/internal/model"

// Capability 单次请求的授权能力：谁在调用、能读写哪些 listing
type Capability interface {
	Identity() Identity
	Authenticated() bool
	IsAdmin() bool
	CanRead(l *model.Listing) bool
	CanWrite(l *model.Listing) bool
}

type capability struct {
	id    Identity
	admin bool
}

// Anonymous 未登录访问
func Anonymous() Capability { return capability{} }

// NewCapability 由已认证身份和角色构造
func NewCapability(id Identity, admin bool) Capability {
	return capability{id: id, admin: admin}
}

func (c capability) Identity() Identity  { return c.id }
func (c capability) Authenticated() bool { return c.id.UserID != "" }
func (c capability) IsAdmin() bool       { return c.admin && c.Authenticated() }

func (c capability) owns(l *model.Listing) bool {
	return c.Authenticated() && l.UserID == c.id.UserID
}

// CanRead 公开可见的，或本人/管理员
func (c capability) CanRead(l *model.Listing) bool {
	return l.Eligible() || c.owns(l) || c.IsAdmin()
}

// CanWrite 本人或管理员
func (c capability) CanWrite(l *model.Listing) bool {
	return c.owns(l) || c.IsAdmin()
}
