package model

import "time"

// UserStatus represents user status
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User roles
const (
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
)

// User is an account that can log in, vote and trigger sweeps within its tenant
type User struct {
	ID           int        `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID     string     `gorm:"type:varchar(64);not null;index" json:"tenantId"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Role         string     `gorm:"type:varchar(32);default:'member'" json:"role"`
	Status       UserStatus `gorm:"type:varchar(16);default:'active'" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
