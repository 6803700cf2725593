package model

import "time"

// UserRole 角色成员关系（由认证方维护，这里只读）
type UserRole struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"type:varchar(36);uniqueIndex:ux_user_role;not null"`
	Role      string `gorm:"type:varchar(32);uniqueIndex:ux_user_role;not null"`
	CreatedAt time.Time
}

func (UserRole) TableName() string { return "user_roles" }
