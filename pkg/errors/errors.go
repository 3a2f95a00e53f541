package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	Unauthorized   = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidRequest = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	InvalidUserID  = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
)

// 打卡账本错误。
var (
	WriteError         = Definition{Code: "WRITE_ERROR", Message: "Check-in ledger unavailable"}
	CheckInAlreadyDone = Definition{Code: "CHECK_IN_ALREADY_DONE", Message: "Check-in already done today"}
)

// 紧急联系人错误。
var (
	ContactInvalid  = Definition{Code: "CONTACT_INVALID", Message: "Contact name and a valid phone are required"}
	ContactNotFound = Definition{Code: "CONTACT_NOT_FOUND", Message: "Trusted contact not found"}
)

// 缺席通知错误。
var (
	NoContactConfigured = Definition{Code: "NO_CONTACT_CONFIGURED", Message: "No trusted contact configured"}
	DeliveryFailed      = Definition{Code: "DELIVERY_FAILED", Message: "Notification delivery failed"}
	MarkerConflict      = Definition{Code: "MARKER_CONFLICT", Message: "Concurrent notification in progress"}
	NoChannelAvailable  = Definition{Code: "NO_CHANNEL_AVAILABLE", Message: "Contact has no reachable channel"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	Unauthorized.Code:        Unauthorized,
	InvalidRequest.Code:      InvalidRequest,
	InvalidUserID.Code:       InvalidUserID,
	WriteError.Code:          WriteError,
	CheckInAlreadyDone.Code:  CheckInAlreadyDone,
	ContactInvalid.Code:      ContactInvalid,
	ContactNotFound.Code:     ContactNotFound,
	NoContactConfigured.Code: NoContactConfigured,
	DeliveryFailed.Code:      DeliveryFailed,
	MarkerConflict.Code:      MarkerConflict,
	NoChannelAvailable.Code:  NoChannelAvailable,
}

// Get 根据错误码返回 Definition，若不存在则返回兜底 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// Wrap 保留 Definition 的错误码，同时带上底层原因
func Wrap(def Definition, cause error) error {
	if cause == nil {
		return def
	}
	return fmt.Errorf("%w: %w", def, cause)
}

// AsDefinition 从错误链中取出第一个 Definition
func AsDefinition(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func New(text string) error {
	return stderrors.New(text)
}

// SkipMessageError 表示消息无需处理（重复、已通知、用户已恢复打卡等），消费者应直接确认
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}

// NonRetryableError 服务商明确拒绝（签名、模板、号码格式等），重试没有意义
type NonRetryableError struct {
	Code    string
	Message string
	Reason  string
}

func NewNonRetryableError(code, message, reason string) *NonRetryableError {
	return &NonRetryableError{Code: code, Message: message, Reason: reason}
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable error [%s]: %s (%s)", e.Code, e.Message, e.Reason)
}

func IsNonRetryableError(err error) bool {
	var nr *NonRetryableError
	return stderrors.As(err, &nr)
}
