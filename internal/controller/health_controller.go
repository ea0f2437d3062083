package controller

import (
	"net/http"

	"puls_survey/internal/service"

	"github.com/gin-gonic/gin"
)

type HealthController struct {
	Gateway *service.GatewayService
}

func NewHealthController(gateway *service.GatewayService) *HealthController {
	return &HealthController{Gateway: gateway}
}

// @Summary 健康检查
// @Description 检查问卷后端是否可用
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (hc *HealthController) HealthCheck(c *gin.Context) {
	if !hc.Gateway.Health(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "backend_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
