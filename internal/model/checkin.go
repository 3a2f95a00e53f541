package model

import "time"

// CheckIn 打卡事件，只追加，不更新不删除
type CheckIn struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	UserID     string    `gorm:"type:varchar(64);not null;index:idx_check_ins_user_time,priority:1;uniqueIndex:idx_check_ins_daily,priority:1" json:"user_id"`
	OccurredAt time.Time `gorm:"type:timestamptz;not null;index:idx_check_ins_user_time,priority:2,sort:desc" json:"occurred_at"`
	// DailyKey 页面打卡的展示时区日期，(user_id, daily_key) 唯一；其他来源为 NULL，不受限制
	DailyKey   *string   `gorm:"type:varchar(10);uniqueIndex:idx_check_ins_daily,priority:2" json:"-"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null" json:"created_at"`
}

// TableName 指定表名
func (CheckIn) TableName() string {
	return "check_ins"
}
