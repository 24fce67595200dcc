package domain

import "time"

// ShareRecord 一次性密码分享记录
//
// 只保存密文与 IV，明文密码从不落库；Token 为 256 位随机令牌，与邮箱和密文无关。
type ShareRecord struct {
	Token      string    `json:"-" gorm:"column:link_hash;primaryKey;type:varchar(64)"`
	Ciphertext []byte    `json:"-" gorm:"column:password;type:text"`
	IV         []byte    `json:"-" gorm:"column:iv;type:varchar(64)"`
	Email      string    `json:"email,omitempty" gorm:"column:email;type:varchar(320)"`
	CreatedAt  time.Time `json:"createdAt" gorm:"column:created_at;index"`
	Consumed   bool      `json:"consumed" gorm:"-"`
}

// TableName 与取回端共用的表名
func (ShareRecord) TableName() string {
	return "passwords"
}

// Expired 判断记录是否超过保留期限
func (r *ShareRecord) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(r.CreatedAt) > ttl
}
