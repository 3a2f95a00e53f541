package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"EstouBem/internal/model"
)

// GormStore 基于 PostgreSQL 的实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) primary(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Clauses(dbresolver.Write)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ========== 打卡账本 ==========

func (s *GormStore) CreateCheckIn(ctx context.Context, checkIn *model.CheckIn) error {
	if err := s.db.WithContext(ctx).Create(checkIn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCheckIn
		}
		return fmt.Errorf("insert check-in: %w", err)
	}
	return nil
}

func (s *GormStore) LastCheckIn(ctx context.Context, userID string) (*model.CheckIn, error) {
	var checkIn model.CheckIn
	err := s.primary(ctx).
		Where("user_id = ?", userID).
		Order("occurred_at DESC").
		Take(&checkIn).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &checkIn, nil
}

func (s *GormStore) ListCheckIns(ctx context.Context, userID string, since time.Time) ([]model.CheckIn, error) {
	var checkIns []model.CheckIn
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND occurred_at >= ?", userID, since).
		Order("occurred_at DESC").
		Find(&checkIns).Error
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return checkIns, nil
}

// ========== 用户 ==========

func (s *GormStore) EnsureUser(ctx context.Context, userID string, now time.Time) (*model.User, error) {
	user := model.User{UserID: userID}
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := s.primary(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&user).Error; err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	return s.GetUser(ctx, userID)
}

func (s *GormStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	if err := s.primary(ctx).Where("user_id = ?", userID).Take(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	result := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Update("display_name", displayName)
	if result.Error != nil {
		return fmt.Errorf("update display name: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ========== 紧急联系人 ==========

func (s *GormStore) GetContact(ctx context.Context, userID string) (*model.TrustedContact, error) {
	var contact model.TrustedContact
	if err := s.primary(ctx).Where("user_id = ?", userID).Take(&contact).Error; err != nil {
		return nil, notFound(err)
	}
	return &contact, nil
}

func (s *GormStore) UpsertContact(ctx context.Context, contact *model.TrustedContact) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone_cipher", "phone_hash", "updated_at"}),
		}).
		Create(contact).Error
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteContact(ctx context.Context, userID string) (bool, error) {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.TrustedContact{})
	if result.Error != nil {
		return false, fmt.Errorf("delete contact: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ========== 已通知标记 ==========

func (s *GormStore) GetMarker(ctx context.Context, userID string) (*model.NotificationMarker, error) {
	var marker model.NotificationMarker
	if err := s.primary(ctx).Where("user_id = ?", userID).Take(&marker).Error; err != nil {
		return nil, notFound(err)
	}
	return &marker, nil
}

func (s *GormStore) CompareAndSetMarker(ctx context.Context, userID string, expectedVersion int64, episodeStart, notifiedAt time.Time) error {
	db := s.primary(ctx)

	// 首次通知：依赖主键冲突，并发插入只有一个成功
	if expectedVersion == 0 {
		marker := model.NotificationMarker{
			UserID:       userID,
			EpisodeStart: episodeStart,
			NotifiedAt:   notifiedAt,
			Version:      1,
			UpdatedAt:    notifiedAt,
		}
		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if result.Error != nil {
			return fmt.Errorf("insert marker: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrMarkerConflict
		}
		return nil
	}

	result := db.Model(&model.NotificationMarker{}).
		Where("user_id = ? AND version = ?", userID, expectedVersion).
		Updates(map[string]interface{}{
			"episode_start": episodeStart,
			"notified_at":   notifiedAt,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    notifiedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update marker: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMarkerConflict
	}
	return nil
}

// ========== 通知任务 ==========

func (s *GormStore) GetOrCreateTask(ctx context.Context, task *model.NotificationTask) error {
	db := s.primary(ctx)

	var existing model.NotificationTask
	err := db.Where("user_id = ? AND episode_start = ?", task.UserID, task.EpisodeStart).Take(&existing).Error
	if err == nil {
		*task = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load task: %w", err)
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(task)
	if result.Error != nil {
		return fmt.Errorf("create task: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// 并发创建，读回胜出方
	if err := db.Where("user_id = ? AND episode_start = ?", task.UserID, task.EpisodeStart).Take(&existing).Error; err != nil {
		return fmt.Errorf("reload task: %w", err)
	}
	*task = existing
	return nil
}

func (s *GormStore) UpdateTask(ctx context.Context, task *model.NotificationTask) error {
	err := s.db.WithContext(ctx).
		Model(&model.NotificationTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":       task.Status,
			"retry_count":  task.RetryCount,
			"last_error":   task.LastError,
			"processed_at": task.ProcessedAt,
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *GormStore) CreateAttempt(ctx context.Context, attempt *model.ContactAttempt) error {
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("insert contact attempt: %w", err)
	}
	return nil
}

func (s *GormStore) ListAttempts(ctx context.Context, taskCode int64) ([]model.ContactAttempt, error) {
	var attempts []model.ContactAttempt
	err := s.db.WithContext(ctx).
		Where("task_code = ?", taskCode).
		Order("attempted_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("list contact attempts: %w", err)
	}
	return attempts, nil
}

// ========== 缺席扫描 ==========

const listMonitoredSQL = `
SELECT c.user_id AS user_id,
       COALESCE(u.created_at, c.created_at) AS registered_at,
       ci.last_check_in AS last_check_in,
       m.notified_at AS last_notified_at
FROM trusted_contacts c
LEFT JOIN users u ON u.user_id = c.user_id AND u.deleted_at IS NULL
LEFT JOIN LATERAL (
    SELECT occurred_at AS last_check_in
    FROM check_ins
    WHERE check_ins.user_id = c.user_id
    ORDER BY occurred_at DESC
    LIMIT 1
) ci ON TRUE
LEFT JOIN notification_markers m ON m.user_id = c.user_id
WHERE c.user_id > ?
ORDER BY c.user_id
LIMIT ?`

func (s *GormStore) ListMonitored(ctx context.Context, afterUserID string, limit int) ([]model.MonitoredUser, error) {
	var rows []model.MonitoredUser
	err := s.db.WithContext(ctx).
		Clauses(dbresolver.Read).
		Raw(listMonitoredSQL, afterUserID, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list monitored users: %w", err)
	}
	return rows, nil
}
