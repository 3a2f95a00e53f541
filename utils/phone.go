package utils

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone 解析用户输入的号码（允许 "(11) 98765-4321" 这类掩码格式），返回 E.164
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	if defaultRegion == "" {
		defaultRegion = "BR"
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// FormatPhoneDisplay 巴西号码输出 (XX) XXXXX-XXXX / (XX) XXXX-XXXX，其他地区用国际格式
func FormatPhoneDisplay(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return e164
	}

	if num.GetCountryCode() != 55 {
		return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	}

	national := phonenumbers.GetNationalSignificantNumber(num)
	switch len(national) {
	case 11:
		return "(" + national[:2] + ") " + national[2:7] + "-" + national[7:]
	case 10:
		return "(" + national[:2] + ") " + national[2:6] + "-" + national[6:]
	default:
		return phonenumbers.Format(num, phonenumbers.NATIONAL)
	}
}

// MaskPhone 只保留区号和末四位，用于日志和列表展示
func MaskPhone(e164 string) string {
	display := FormatPhoneDisplay(e164)
	if len(display) <= 4 {
		return display
	}

	tail := display[len(display)-4:]
	head := ""
	if i := strings.Index(display, ")"); i > 0 {
		head = display[:i+1] + " "
	}
	return head + "****-" + tail
}
