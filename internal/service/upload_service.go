package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"puls_survey/internal/config"
	"puls_survey/internal/model"
	"puls_survey/internal/util"
	"puls_survey/pkg/logger"
	"puls_survey/pkg/monitoring"

	"go.uber.org/zap"
)

var ErrFileTooLarge = errors.New("file too large")

// UploadService 把网关收到的录制写入对象存储
type UploadService struct {
	Storage *StorageService
	Media   *MediaService

	probe    bool
	maxBytes int64
	now      func() time.Time
}

func NewUploadService(cfg *config.Config, storage *StorageService) *UploadService {
	s := &UploadService{
		Storage:  storage,
		Media:    NewMediaService(cfg.Storage.MaxDuration),
		probe:    cfg.Storage.ProbeMedia,
		maxBytes: cfg.Storage.MaxUploadMB << 20,
		now:      time.Now,
	}
	if s.probe && !s.Media.Available() {
		logger.Log.Warn("storage.probe_media is enabled but ffmpeg is not installed, probing disabled")
		s.probe = false
	}
	return s
}

// objectFormat 根据上传文件名决定扩展名和 Content-Type，未知扩展名按作答方式的默认格式处理
func objectFormat(m model.Modality, filename string) (ext, contentType string) {
	ext = strings.ToLower(filepath.Ext(filename))
	if m == model.ModalityVideo {
		if ext == ".mp4" {
			return ".mp4", util.MimeVideoMP4
		}
		return ".webm", util.MimeVideoWebm
	}
	return ".wav", util.MimeAudioWav
}

// ObjectKey <modality>_<毫秒时间戳>_<题目ID><扩展名>，时间取服务器时钟
func ObjectKey(m model.Modality, questionnaireID int, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%d_%d%s", m, at.UnixMilli(), questionnaireID, ext)
}

var ErrInvalidQuestion = errors.New("invalid questionnaire id")

func (s *UploadService) Save(ctx context.Context, m model.Modality, questionnaireID int, file *multipart.FileHeader) (*model.UploadResult, error) {
	if questionnaireID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuestion, questionnaireID)
	}
	if s.maxBytes > 0 && file.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, file.Size)
	}

	ext, contentType := objectFormat(m, file.Filename)
	key := ObjectKey(m, questionnaireID, s.now(), ext)

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrUploadFailed, err)
	}
	defer src.Close()

	var location string
	if s.probe {
		location, err = s.saveProbed(ctx, m, key, src, contentType)
	} else {
		location, err = s.Storage.Upload(ctx, key, src, file.Size, contentType)
	}
	if err != nil {
		logger.Log.Error("Upload failed",
			zap.String("key", key),
			zap.String("provider", s.Storage.Provider.Name()),
			zap.Error(err))
		if errors.Is(err, ErrMediaRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", util.ErrUploadFailed, err)
	}

	monitoring.UploadBytes.WithLabelValues(string(m)).Add(float64(file.Size))
	logger.Log.Info("Recording stored",
		zap.String("key", key),
		zap.Int("questionnaire_id", questionnaireID),
		zap.Int64("size", file.Size),
		zap.String("provider", s.Storage.Provider.Name()))

	label := "Audio"
	if m == model.ModalityVideo {
		label = "Video"
	}
	return &model.UploadResult{
		Success: true,
		Key:     key,
		Message: label + " uploaded successfully",
		Response: map[string]any{
			"location":    location,
			"provider":    s.Storage.Provider.Name(),
			"contentType": contentType,
			"size":        file.Size,
		},
	}, nil
}

// saveProbed 先写入临时文件供 ffprobe 读取，校验通过后再上传
func (s *UploadService) saveProbed(ctx context.Context, m model.Modality, key string, src io.Reader, contentType string) (string, error) {
	tmp, err := os.CreateTemp("", "puls-upload-*"+filepath.Ext(key))
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if _, err := s.Media.Check(tmp.Name(), m == model.ModalityVideo); err != nil {
		return "", err
	}
	return s.Storage.UploadFile(ctx, key, tmp.Name(), contentType)
}
