package util

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerToken 从 Authorization 头取出 token，没有 Bearer 前缀时原样返回
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// TokenExpiry 读取上游 access_token 中的 exp，不校验签名（密钥属于后端）
// 非 JWT 或没有 exp 时 ok 为 false
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
