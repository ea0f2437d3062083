package capture

import (
	"context"
	"time"
)

// Constraints 采集约束：音频只要麦克风；视频要前置摄像头和麦克风
type Constraints struct {
	Audio      bool
	Video      bool
	FacingMode string
}

// Track 一路采集轨道，Stop 后硬件指示灯应熄灭
type Track interface {
	Kind() string
	Stop()
	Live() bool
}

// Stream 已获得授权的采集流
type Stream interface {
	Tracks() []Track
	// Ready 阻塞到预览可播放；音频流直接返回
	Ready(ctx context.Context) error
}

// Recorder 把流编码成分片，分片通过 sink 交给引擎持有的缓冲区
type Recorder interface {
	// Start timeslice>0 时按时间片输出分片
	Start(timeslice time.Duration, sink func([]byte)) error
	// Stop 同步结束编码，返回前必须把剩余分片写入 sink
	Stop() error
}

// Device 平台采集能力
type Device interface {
	// Supported 平台是否具备采集能力
	Supported() bool
	// Acquire 请求设备权限，用户拒绝或设备不存在时返回错误
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	IsTypeSupported(mimeType string) bool
	// NewRecorder mimeType 为空表示使用平台默认编码
	NewRecorder(s Stream, mimeType string) (Recorder, error)
}

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// Clock 自动停止使用的时钟，测试中替换
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// StopTracks 停止流上的全部轨道
func StopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// LiveTracks 统计仍在采集的轨道数
func LiveTracks(s Stream) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tracks() {
		if t.Live() {
			n++
		}
	}
	return n
}
