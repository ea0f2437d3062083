package capture

import (
	"puls_survey/internal/model"
	"puls_survey/internal/util"
)

// NegotiateMime 返回录制器使用的编码和 blob 标注的类型
// 视频按 util.VideoMimePreference 顺序尝试，均不支持时 recorderMime 为空（平台默认），blob 标注为 video/webm
// 音频始终使用平台默认编码，blob 标注为 audio/wav
func NegotiateMime(m model.Modality, d Device) (recorderMime, blobMime string) {
	if m != model.ModalityVideo {
		return "", util.MimeAudioWav
	}
	for _, candidate := range util.VideoMimePreference {
		if d.IsTypeSupported(candidate) {
			return candidate, candidate
		}
	}
	return "", util.DefaultVideoMT
}
