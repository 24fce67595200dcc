package domain

import "time"

// User 表示可登录后台的操作员
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	IsAdmin      bool       `json:"isAdmin" gorm:"default:false"`
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Actor 已认证的调用方身份，用于审计归属
type Actor struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// Valid 判断身份是否完整
func (a Actor) Valid() bool {
	return a.UserID != ""
}
