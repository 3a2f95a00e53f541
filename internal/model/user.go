package model

// User 监控对象，user_id 为身份服务签发的 subject。
// 首次打卡或保存联系人时懒创建，created_at 作为从未打卡用户的沉默起点
type User struct {
	BaseModel
	UserID      string `gorm:"uniqueIndex;type:varchar(64);not null" json:"user_id"`
	DisplayName string `gorm:"type:varchar(64);not null;default:''" json:"display_name"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
