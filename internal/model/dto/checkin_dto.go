package dto

import "time"

// ========== CheckIn 相关 DTO ==========

// CheckInItem 单条打卡记录
type CheckInItem struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CompleteCheckInResponse 完成打卡响应
type CompleteCheckInResponse struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
	Date        string    `json:"date"`
	NextAlertAt time.Time `json:"next_alert_at"`
}

// CheckInStatusData 当前打卡状态
type CheckInStatusData struct {
	LastCheckInAt     *time.Time `json:"last_check_in_at,omitempty"`
	AlertAt           time.Time  `json:"alert_at"`
	Date              string     `json:"date"`
	SilenceSeconds    int64      `json:"silence_seconds"`
	ThresholdSeconds  int64      `json:"threshold_seconds"`
	CheckedInToday    bool       `json:"checked_in_today"`
	Absent            bool       `json:"absent"`
	ContactConfigured bool       `json:"contact_configured"`
}

// CalendarDay 日历中的一天
type CalendarDay struct {
	Date       string `json:"date"`
	HasCheckIn bool   `json:"has_check_in"`
}

// CheckInHistoryQuery 打卡日历查询参数
type CheckInHistoryQuery struct {
	Days int `query:"days"`
}

// CheckInListQuery 原始打卡记录查询参数，since 为 RFC3339
type CheckInListQuery struct {
	Since string `query:"since"`
}
