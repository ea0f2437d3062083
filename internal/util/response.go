package util

import (
	"net/http"

	"puls_survey/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 网关统一错误结构：{detail} 或 {error}

func Detail(c *gin.Context, code int, detail string) {
	c.JSON(code, gin.H{"detail": detail})
}

func ErrorBody(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func Unauthorized(c *gin.Context) {
	Detail(c, http.StatusUnauthorized, "Authorization header is required")
}

func BadRequest(c *gin.Context, detail string) {
	Detail(c, http.StatusBadRequest, detail)
}

func InternalServerError(c *gin.Context) {
	Detail(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.String("path", c.FullPath()), zap.Error(err))
	InternalServerError(c)
}

// Raw 原样写回上游响应
func Raw(c *gin.Context, code int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(code, contentType, body)
}
