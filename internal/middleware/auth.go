package middleware

import (
	"puls_survey/internal/util"
	"puls_survey/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const authorizationKey = "authorization"

// RequireBearer 只检查凭证是否存在，凭证本身由上游校验
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if util.BearerToken(auth) == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if exp, ok := util.TokenExpiry(util.BearerToken(auth)); ok {
			logger.Log.Debug("Bearer token", zap.String("path", c.FullPath()), zap.Time("exp", exp))
		}

		c.Set(authorizationKey, auth)
		c.Next()
	}
}

// OptionalBearer 凭证缺失时不拦截，交给处理函数降级
func OptionalBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); util.BearerToken(auth) != "" {
			c.Set(authorizationKey, auth)
		}
		c.Next()
	}
}

// Authorization 返回转发给上游的 Authorization 头，未通过校验时为空
func Authorization(c *gin.Context) string {
	return c.GetString(authorizationKey)
}
