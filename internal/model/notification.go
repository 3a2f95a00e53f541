package model

import "time"

// NotificationChannel 通知渠道枚举
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)

// NotificationTaskStatus 通知任务状态枚举
type NotificationTaskStatus string

const (
	NotificationTaskStatusPending    NotificationTaskStatus = "pending"    // 待处理
	NotificationTaskStatusProcessing NotificationTaskStatus = "processing" // 处理中
	NotificationTaskStatusSuccess    NotificationTaskStatus = "success"    // 至少一个渠道送达
	NotificationTaskStatusFailed     NotificationTaskStatus = "failed"     // 本轮全部渠道失败，等待下一次扫描
	NotificationTaskStatusConflict   NotificationTaskStatus = "conflict"   // 已送达但标记写入失败
)

// NotificationMarker 已通知标记，version 用于 compare-and-set。
// episode_start 记录覆盖的缺席区间起点，重新打卡后的新区间可以区分
type NotificationMarker struct {
	UserID       string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	EpisodeStart time.Time `gorm:"type:timestamptz;not null" json:"episode_start"`
	NotifiedAt   time.Time `gorm:"type:timestamptz;not null" json:"notified_at"`
	Version      int64     `gorm:"not null" json:"version"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;not null" json:"updated_at"`
}

// TableName 指定表名
func (NotificationMarker) TableName() string {
	return "notification_markers"
}

// Covers 标记是否已经覆盖 episodeStart 开始的缺席区间
func (m *NotificationMarker) Covers(episodeStart time.Time) bool {
	return m != nil && !m.NotifiedAt.Before(episodeStart)
}

// NotificationTask 每个 (用户, 缺席区间) 一条任务，记录重试次数与终态
type NotificationTask struct {
	BaseModel
	TaskCode     int64                  `gorm:"uniqueIndex;not null" json:"task_code,string"`
	UserID       string                 `gorm:"type:varchar(64);not null;uniqueIndex:idx_notification_tasks_episode,priority:1" json:"user_id"`
	EpisodeStart time.Time              `gorm:"type:timestamptz;not null;uniqueIndex:idx_notification_tasks_episode,priority:2" json:"episode_start"`
	Status       NotificationTaskStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	RetryCount   int                    `gorm:"not null" json:"retry_count"`
	LastError    string                 `gorm:"type:varchar(255);not null;default:''" json:"last_error,omitempty"`
	ProcessedAt  *time.Time             `gorm:"type:timestamptz" json:"processed_at,omitempty"`
}

// TableName 指定表名
func (NotificationTask) TableName() string {
	return "notification_tasks"
}

// ContactAttemptStatus 通知尝试状态枚举
type ContactAttemptStatus string

const (
	ContactAttemptStatusSuccess ContactAttemptStatus = "success" // 成功
	ContactAttemptStatusFailed  ContactAttemptStatus = "failed"  // 失败
)

// ContactAttempt 单个渠道的一次投递尝试
type ContactAttempt struct {
	ID              int64                `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskCode        int64                `gorm:"not null;index" json:"task_code,string"`
	Channel         NotificationChannel  `gorm:"type:varchar(16);not null" json:"channel"`
	Attempt         int                  `gorm:"not null" json:"attempt"`
	Status          ContactAttemptStatus `gorm:"type:varchar(16);not null" json:"status"`
	ResponseMessage string               `gorm:"type:varchar(255);not null;default:''" json:"response_message,omitempty"`
	AttemptedAt     time.Time            `gorm:"type:timestamptz;not null" json:"attempted_at"`
}

// TableName 指定表名
func (ContactAttempt) TableName() string {
	return "contact_attempts"
}
