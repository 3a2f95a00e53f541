package repository

import (
	"context"
	"errors"
	"time"

	"EstouBem/internal/model"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrMarkerConflict = errors.New("notification marker version changed")
	// ErrDuplicateCheckIn 同一用户同一天已有页面打卡
	ErrDuplicateCheckIn = errors.New("check-in already recorded for this day")
)

// CheckInStore 打卡账本，只追加
type CheckInStore interface {
	// CreateCheckIn DailyKey 冲突时返回 ErrDuplicateCheckIn
	CreateCheckIn(ctx context.Context, checkIn *model.CheckIn) error
	// LastCheckIn 没有记录时返回 ErrNotFound
	LastCheckIn(ctx context.Context, userID string) (*model.CheckIn, error)
	// ListCheckIns 按 occurred_at 倒序返回 since 之后（含）的记录
	ListCheckIns(ctx context.Context, userID string, since time.Time) ([]model.CheckIn, error)
}

type UserStore interface {
	// EnsureUser 不存在则以 now 作为注册时间创建
	EnsureUser(ctx context.Context, userID string, now time.Time) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) error
}

type ContactStore interface {
	GetContact(ctx context.Context, userID string) (*model.TrustedContact, error)
	UpsertContact(ctx context.Context, contact *model.TrustedContact) error
	// DeleteContact 返回是否真的删除了记录
	DeleteContact(ctx context.Context, userID string) (bool, error)
}

// MarkerStore 已通知标记，读写都走主库
type MarkerStore interface {
	// GetMarker 没有标记时返回 ErrNotFound
	GetMarker(ctx context.Context, userID string) (*model.NotificationMarker, error)
	// CompareAndSetMarker 仅当当前版本等于 expectedVersion 时写入，version 0 表示标记尚不存在。
	// 版本不匹配返回 ErrMarkerConflict
	CompareAndSetMarker(ctx context.Context, userID string, expectedVersion int64, episodeStart, notifiedAt time.Time) error
}

type TaskStore interface {
	// GetOrCreateTask 按 (user_id, episode_start) 取已有任务，没有则创建；task 会被回填为持久化后的行
	GetOrCreateTask(ctx context.Context, task *model.NotificationTask) error
	UpdateTask(ctx context.Context, task *model.NotificationTask) error
	CreateAttempt(ctx context.Context, attempt *model.ContactAttempt) error
	ListAttempts(ctx context.Context, taskCode int64) ([]model.ContactAttempt, error)
}

// MonitorStore 缺席扫描的批量读取
type MonitorStore interface {
	// ListMonitored 返回有紧急联系人的用户，按 user_id 升序，从 afterUserID 之后取 limit 条
	ListMonitored(ctx context.Context, afterUserID string, limit int) ([]model.MonitoredUser, error)
}

// Store 汇总所有存储能力
type Store interface {
	CheckInStore
	UserStore
	ContactStore
	MarkerStore
	TaskStore
	MonitorStore
}
