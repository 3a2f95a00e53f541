package dto

import "time"

// UpdateProfileRequest 更新显示名，告警文案中使用
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// UserProfile 用户资料
type UserProfile struct {
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
}
