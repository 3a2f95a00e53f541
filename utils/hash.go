package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"EstouBem/config"
)

// HashPhone 盐 + ":" + E.164 号码做 sha256，用于日志和投递记录里代替明文
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(config.Cfg.PhoneHashSalt + ":" + phone))
	return hex.EncodeToString(sum[:])
}
