package model

import "time"

// TrustedContact 每个用户最多一个紧急联系人，按 user_id upsert，删除为物理删除
type TrustedContact struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID      string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"user_id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	Email       string    `gorm:"type:varchar(255);not null;default:''" json:"email,omitempty"`
	PhoneCipher []byte    `gorm:"type:bytea;not null" json:"-"`          // 手机号密文，不对外暴露
	PhoneHash   string    `gorm:"type:char(64);not null;index" json:"-"` // 手机号哈希，日志与投递记录使用
	CreatedAt   time.Time `gorm:"type:timestamptz;not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null" json:"updated_at"`
}

// TableName 指定表名
func (TrustedContact) TableName() string {
	return "trusted_contacts"
}

// HasEmail 邮件渠道是否可用
func (c *TrustedContact) HasEmail() bool {
	return c.Email != ""
}
