package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"EstouBem/config"
	"EstouBem/pkg/errors"
)

var (
	// 由 middleware 和签发工具共同使用
	sharedGenerator *jwt.HertzJWTMiddleware

	ErrNotInitialized = errors.New("token generator not initialized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("identity claim missing")
)

// Init 用全局配置初始化，token 由身份服务签发，这里保存校验参数
func Init() error {
	return InitWith(
		config.Cfg.JWTSecret,
		config.Cfg.JWTIdentityClaim,
		time.Duration(config.Cfg.JWTExpireMinutes)*time.Minute,
	)
}

func InitWith(secret, identityClaim string, timeout time.Duration) error {
	if identityClaim == "" {
		identityClaim = "sub"
	}

	gen, err := jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(secret),
		Timeout:     timeout,
		IdentityKey: identityClaim,
		TimeFunc:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	sharedGenerator = gen
	return nil
}

// GetGenerator 获取共享的配置（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// Issue 签发 HS256 access token，本地开发和测试模拟身份服务使用
func Issue(userID string, ttl time.Duration) (string, error) {
	if sharedGenerator == nil {
		return "", ErrNotInitialized
	}
	if ttl <= 0 {
		ttl = sharedGenerator.Timeout
	}

	now := sharedGenerator.TimeFunc()
	claims := jwtv5.MapClaims{
		sharedGenerator.IdentityKey: userID,
		"iat":                       now.Unix(),
		"exp":                       now.Add(ttl).Unix(),
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(sharedGenerator.Key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseUserID 校验签名和过期时间，返回身份声明里的用户 ID
func ParseUserID(tokenString string) (string, error) {
	if sharedGenerator == nil {
		return "", ErrNotInitialized
	}

	parsed, err := jwtv5.Parse(tokenString, func(t *jwtv5.Token) (interface{}, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return sharedGenerator.Key, nil
	}, jwtv5.WithExpirationRequired(), jwtv5.WithTimeFunc(sharedGenerator.TimeFunc))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	return IdentityFromClaims(claims, sharedGenerator.IdentityKey)
}

// IdentityFromClaims 身份声明可能是字符串或数字
func IdentityFromClaims(claims map[string]interface{}, key string) (string, error) {
	switch v := claims[key].(type) {
	case string:
		if v == "" {
			return "", ErrMissingSubject
		}
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	default:
		return "", ErrMissingSubject
	}
}
