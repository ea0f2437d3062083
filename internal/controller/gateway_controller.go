package controller

import (
	"errors"
	"io"
	"net/http"

	"puls_survey/internal/middleware"
	"puls_survey/internal/service"
	"puls_survey/internal/util"
	"puls_survey/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GatewayController struct {
	Gateway *service.GatewayService
}

func NewGatewayController(gateway *service.GatewayService) *GatewayController {
	return &GatewayController{Gateway: gateway}
}

// relayError 只有网络层失败会走到这里
func relayError(c *gin.Context, err error) {
	if errors.Is(err, util.ErrTransport) {
		logger.Log.Warn("Relay failed", zap.String("path", c.FullPath()), zap.Error(err))
		util.InternalServerError(c)
		return
	}
	util.LogInternalError(c, err)
}

// @Summary 登录
// @Description 表单方式转发到问卷后端，返回会话数据
// @Tags 网关
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "用户名"
// @Param password formData string true "密码"
// @Success 200 {object} model.Session
// @Failure 401 {object} map[string]string
// @Router /login [post]
func (gc *GatewayController) Login(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.BadRequest(c, "Invalid request body")
		return
	}

	resp, err := gc.Gateway.Login(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, util.ErrUpstream) {
			logger.Log.Warn("Login upstream returned an unusable body", zap.Error(err))
			util.Detail(c, http.StatusBadGateway, "Login failed")
			return
		}
		relayError(c, err)
		return
	}
	if !resp.OK() {
		util.Detail(c, resp.Status, "Login failed")
		return
	}
	util.Raw(c, resp.Status, util.MimeJSON, resp.Body)
}

// @Summary 个人资料题目
// @Tags 网关
// @Produce json
// @Param survey_id query string true "问卷ID"
// @Success 200 {array} model.ProfileQuestion
// @Failure 400 {object} map[string]string
// @Security ApiKeyAuth
// @Router /profile-questions [get]
func (gc *GatewayController) ProfileQuestions(c *gin.Context) {
	surveyID := c.Query("survey_id")
	if surveyID == "" {
		util.BadRequest(c, "Survey ID is required")
		return
	}

	resp, err := gc.Gateway.ProfileQuestions(c.Request.Context(), middleware.Authorization(c), surveyID)
	if err != nil {
		relayError(c, err)
		return
	}
	if !resp.OK() {
		util.Detail(c, resp.Status, "Failed to fetch profile questions")
		return
	}
	util.Raw(c, resp.Status, util.MimeJSON, resp.Body)
}

// @Summary 提交个人资料
// @Description 上游状态码和响应体原样返回
// @Tags 网关
// @Accept json
// @Produce json
// @Param body body model.ProfileSubmission true "个人资料"
// @Success 200 {object} model.ProfileResult
// @Security ApiKeyAuth
// @Router /add-profile-data [post]
func (gc *GatewayController) AddProfileData(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.BadRequest(c, "Invalid request body")
		return
	}

	resp, err := gc.Gateway.AddProfileData(c.Request.Context(), middleware.Authorization(c), body)
	if err != nil {
		relayError(c, err)
		return
	}
	util.Raw(c, resp.Status, resp.ContentType, resp.Body)
}

// @Summary 问卷题目
// @Description studytype_id 可代替 studyType
// @Tags 网关
// @Produce json
// @Param type query string true "text / audio / video"
// @Param studyType query string true "研究类型ID"
// @Success 200 {array} model.SurveyQuestion
// @Failure 400 {object} map[string]string
// @Security ApiKeyAuth
// @Router /questions [get]
func (gc *GatewayController) Questions(c *gin.Context) {
	questionType := c.Query("type")
	studyType := c.Query("studyType")
	if studyType == "" {
		studyType = c.Query("studytype_id")
	}
	if questionType == "" || studyType == "" {
		util.BadRequest(c, "Type and studyType are required")
		return
	}

	resp, err := gc.Gateway.Questions(c.Request.Context(), middleware.Authorization(c), studyType, questionType)
	if err != nil {
		relayError(c, err)
		return
	}
	if !resp.OK() {
		util.Detail(c, resp.Status, "Failed to fetch questions")
		return
	}
	util.Raw(c, resp.Status, util.MimeJSON, resp.Body)
}

// @Summary 音频题目（旧版接口）
// @Tags 网关
// @Produce json
// @Param studyTypeId path string true "研究类型ID"
// @Security ApiKeyAuth
// @Router /questionnaires/{studyTypeId}/audio [get]
func (gc *GatewayController) AudioQuestionnaires(c *gin.Context) {
	resp, err := gc.Gateway.AudioQuestionnaires(c.Request.Context(), middleware.Authorization(c), c.Param("studyTypeId"))
	if err != nil {
		relayError(c, err)
		return
	}
	util.Raw(c, resp.Status, resp.ContentType, resp.Body)
}

// @Summary 提交问卷结果
// @Description 上游状态码和响应体原样返回
// @Tags 网关
// @Accept json
// @Produce json
// @Param body body model.SurveySubmission true "问卷结果"
// @Security ApiKeyAuth
// @Router /survey_results [post]
func (gc *GatewayController) SurveyResults(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.BadRequest(c, "Invalid request body")
		return
	}

	resp, err := gc.Gateway.SurveyResults(c.Request.Context(), middleware.Authorization(c), c.ContentType(), body)
	if err != nil {
		relayError(c, err)
		return
	}
	util.Raw(c, resp.Status, resp.ContentType, resp.Body)
}

type phoneDuplicateRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// @Summary 手机号查重
// @Description 任何失败（包括缺少凭证）都返回 exists=false
// @Tags 网关
// @Accept json
// @Produce json
// @Param body body phoneDuplicateRequest true "手机号"
// @Success 200 {object} model.PhoneDuplicateResult
// @Router /check_phone_duplicate [post]
func (gc *GatewayController) CheckPhoneDuplicate(c *gin.Context) {
	var req phoneDuplicateRequest
	auth := middleware.Authorization(c)
	if auth == "" || c.ShouldBindJSON(&req) != nil || req.PhoneNumber == "" {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	exists := gc.Gateway.CheckPhoneDuplicate(c.Request.Context(), auth, req.PhoneNumber)
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}
