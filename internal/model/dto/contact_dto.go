package dto

import "time"

// ========== Contact 相关 DTO ==========

// ContactItem 紧急联系人
type ContactItem struct {
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone"` // (XX) XXXXX-XXXX
	PhoneMasked string    `json:"phone_masked"`
}

// UpsertContactRequest 保存联系人，姓名和手机号必填，邮箱可选
type UpsertContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
