package domain

import "time"

// AuditStatus 审计记录状态
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditError   AuditStatus = "error"
)

// EmailLog 邮箱开通审计记录
type EmailLog struct {
	ID             uint64      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedBy      string      `json:"createdBy" gorm:"type:varchar(36);index;not null"`
	EmailAddress   string      `json:"emailAddress" gorm:"type:varchar(320);index;not null"`
	Domain         string      `json:"domain" gorm:"type:varchar(253);not null"`
	Status         AuditStatus `json:"status" gorm:"type:varchar(16);not null"`
	ErrorMessage   *string     `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedAt      time.Time   `json:"createdAt" gorm:"index"`
	CreatedByEmail string      `json:"createdByEmail,omitempty" gorm:"->;-:migration"` // 仅查询时关联 users 表填充
}
