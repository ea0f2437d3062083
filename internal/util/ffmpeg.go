package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaInfo 音视频元数据
type MediaInfo struct {
	Duration float64 `json:"duration"` // 秒
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
	HasVideo bool    `json:"has_video"`
	HasAudio bool    `json:"has_audio"`
}

// GetMediaInfo 使用ffmpeg-go的Probe获取文件信息
func GetMediaInfo(path string) (*MediaInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("media file not found: %v", err)
	}

	jsonOutput, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe media: %v", err)
	}

	return parseProbe(jsonOutput, fileInfo.Size())
}

func parseProbe(jsonOutput string, fileSize int64) (*MediaInfo, error) {
	var result struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
			Format   string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %v", err)
	}

	info := &MediaInfo{Format: "unknown"}
	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width = stream.Width
				info.Height = stream.Height
			}
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}

	// webm 录制文件经常没有 duration，保持 0
	if d, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	size, err := strconv.ParseInt(result.Format.Size, 10, 64)
	if err != nil {
		size = fileSize
	}
	info.Size = size

	if parts := strings.Split(result.Format.Format, ","); len(parts) > 0 && parts[0] != "" {
		info.Format = parts[0]
	}

	return info, nil
}

// GetFFmpegVersion 获取FFmpeg版本信息，用于检查FFmpeg是否正确安装
func GetFFmpegVersion() (string, error) {
	// ffmpeg-go 没有直接执行任意参数的接口，这里用 os/exec
	cmd := exec.Command("ffmpeg", "-version", "-hide_banner")
	var out bytes.Buffer
	var errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg is not available: %v, %s", err, errOut.String())
	}

	return out.String(), nil
}
