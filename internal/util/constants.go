package util

import "time"

// 录制时长上限
const MaxRecordingDuration = 30 * time.Second

// 自由文本答案最大长度
const MaxFreeTextLength = 250

const PhoneCode = "+91"

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
	StorageS3    = "s3"
)

const (
	MimeAudioWav   = "audio/wav"
	MimeVideoWebm  = "video/webm"
	MimeVideoMP4   = "video/mp4"
	MimeFormURL    = "application/x-www-form-urlencoded"
	MimeJSON       = "application/json"
	DefaultVideoMT = MimeVideoWebm
)

// VideoMimePreference 视频编码按顺序协商，均不支持时使用平台默认
var VideoMimePreference = []string{
	"video/webm;codecs=vp9",
	"video/webm;codecs=vp8",
	"video/webm",
	"video/mp4",
}
