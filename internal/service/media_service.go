package service

import (
	"errors"
	"fmt"

	"puls_survey/internal/util"
	"puls_survey/pkg/logger"

	"go.uber.org/zap"
)

var ErrMediaRejected = errors.New("recording rejected")

// MediaService 使用 ffprobe 校验上传的录制文件
type MediaService struct {
	maxDuration float64
	probe       func(path string) (*util.MediaInfo, error)
}

func NewMediaService(maxDurationSeconds float64) *MediaService {
	return &MediaService{maxDuration: maxDurationSeconds, probe: util.GetMediaInfo}
}

// Available ffmpeg 是否安装
func (s *MediaService) Available() bool {
	_, err := util.GetFFmpegVersion()
	return err == nil
}

// Check 视频必须包含视频流，音频必须包含音频流，时长不超过上限
// webm 录制文件经常没有时长信息，时长为 0 时不校验
func (s *MediaService) Check(path string, video bool) (*util.MediaInfo, error) {
	info, err := s.probe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaRejected, err)
	}
	if video && !info.HasVideo {
		return info, fmt.Errorf("%w: no video stream", ErrMediaRejected)
	}
	if !video && !info.HasAudio {
		return info, fmt.Errorf("%w: no audio stream", ErrMediaRejected)
	}
	if s.maxDuration > 0 && info.Duration > s.maxDuration {
		return info, fmt.Errorf("%w: duration %.1fs exceeds %.1fs", ErrMediaRejected, info.Duration, s.maxDuration)
	}
	logger.Log.Debug("Media probed",
		zap.String("format", info.Format),
		zap.Float64("duration", info.Duration),
		zap.Int64("size", info.Size))
	return info, nil
}
