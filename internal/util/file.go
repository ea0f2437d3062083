package util

import (
	"strings"
)

// BaseMime 去掉 codecs 等参数
func BaseMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}

// ExtensionFor 根据 MIME 返回对象扩展名
func ExtensionFor(mimeType string) string {
	switch BaseMime(mimeType) {
	case "video/mp4":
		return ".mp4"
	case "video/webm", "audio/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	}
	return ".bin"
}

// IsVideo 检测是否为视频
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(BaseMime(mimeType), "video/")
}

// IsAudio 检测是否为音频
func IsAudio(mimeType string) bool {
	return strings.HasPrefix(BaseMime(mimeType), "audio/")
}
