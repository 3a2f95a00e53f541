package model

import "time"

// MonitoredUser 缺席扫描读取的一行：有联系人的用户、最后打卡时间、最近通知时间
type MonitoredUser struct {
	UserID         string
	RegisteredAt   time.Time
	LastCheckIn    *time.Time
	LastNotifiedAt *time.Time
}

// Baseline 沉默计时起点，从未打卡则为注册时间
func (u MonitoredUser) Baseline() time.Time {
	if u.LastCheckIn != nil {
		return *u.LastCheckIn
	}
	return u.RegisteredAt
}
