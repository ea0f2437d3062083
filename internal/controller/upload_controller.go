package controller

import (
	"errors"
	"net/http"
	"strconv"

	"puls_survey/internal/model"
	"puls_survey/internal/service"
	"puls_survey/internal/util"

	"github.com/gin-gonic/gin"
)

type UploadController struct {
	Upload *service.UploadService
}

func NewUploadController(upload *service.UploadService) *UploadController {
	return &UploadController{Upload: upload}
}

// @Summary 上传视频答案
// @Tags 上传
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "录制文件"
// @Param questionnaireId formData int true "题目ID"
// @Success 200 {object} model.UploadResult
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security ApiKeyAuth
// @Router /upload-video [post]
func (uc *UploadController) UploadVideo(c *gin.Context) {
	uc.save(c, model.ModalityVideo)
}

// @Summary 上传音频答案
// @Tags 上传
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "录制文件"
// @Param questionnaireId formData int true "题目ID"
// @Success 200 {object} model.UploadResult
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security ApiKeyAuth
// @Router /upload-audio [post]
func (uc *UploadController) UploadAudio(c *gin.Context) {
	uc.save(c, model.ModalityAudio)
}

func (uc *UploadController) save(c *gin.Context, m model.Modality) {
	file, err := c.FormFile("file")
	if err != nil {
		util.ErrorBody(c, http.StatusBadRequest, "No file provided")
		return
	}

	qid, err := strconv.Atoi(c.PostForm("questionnaireId"))
	if err != nil || qid <= 0 {
		util.ErrorBody(c, http.StatusBadRequest, "Invalid questionnaireId")
		return
	}

	res, err := uc.Upload.Save(c.Request.Context(), m, qid, file)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, service.ErrInvalidQuestion):
		util.ErrorBody(c, http.StatusBadRequest, "Invalid questionnaireId")
	case errors.Is(err, service.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large", "message": "Recordings are limited in size"})
	case errors.Is(err, service.ErrMediaRejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recording", "message": "Please record again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed", "message": "Please try again"})
	}
}
