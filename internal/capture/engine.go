// Package capture 管理麦克风/摄像头采集、录制生命周期以及本地编码
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"puls_survey/internal/model"
	"puls_survey/internal/util"

	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopped
	StateUploading
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNotRecording   = errors.New("no recording in progress")
	ErrNoBlob         = errors.New("no recording available")
	ErrEmptyRecording = errors.New("recording produced no data")
	ErrReleased       = errors.New("capture released")
)

// Blob 录制结果
type Blob struct {
	Data        []byte
	MimeType    string
	Duration    time.Duration
	AutoStopped bool
}

// Engine 单个作答方式（音频或视频）的采集状态机
// 同一时间只允许一个录制；所有状态变化都在 mu 下完成
type Engine struct {
	mu sync.Mutex

	modality    model.Modality
	constraints Constraints
	timeslice   time.Duration
	maxDuration time.Duration

	device   Device
	clock    Clock
	log      *zap.Logger
	observer func(State)

	state     State
	gen       uint64
	stream    Stream
	recorder  Recorder
	buf       chunkBuffer
	blobMime  string
	blob      *Blob
	timer     Timer
	startedAt time.Time
	lastErr   error
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithObserver 状态变化回调，在引擎锁内调用，回调中不能再调用引擎方法
func WithObserver(f func(State)) Option { return func(e *Engine) { e.observer = f } }

func WithMaxDuration(d time.Duration) Option { return func(e *Engine) { e.maxDuration = d } }

func NewEngine(m model.Modality, d Device, opts ...Option) (*Engine, error) {
	e := &Engine{
		modality:    m,
		device:      d,
		clock:       realClock{},
		log:         zap.NewNop(),
		maxDuration: util.MaxRecordingDuration,
	}
	switch m {
	case model.ModalityAudio:
		e.constraints = Constraints{Audio: true}
	case model.ModalityVideo:
		e.constraints = Constraints{Audio: true, Video: true, FacingMode: "user"}
		e.timeslice = time.Second
	default:
		return nil, fmt.Errorf("capture: unsupported modality %q", m)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Modality() model.Modality { return e.modality }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError 最近一次采集或录制失败原因
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Blob 已停止录制的结果，没有时返回 nil
func (e *Engine) Blob() *Blob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blob
}

// ActiveTracks 引擎当前持有的活动轨道数
func (e *Engine) ActiveTracks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return LiveTracks(e.stream)
}

// Elapsed 当前录制已进行的时间
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRecording {
		return 0
	}
	return e.clock.Now().Sub(e.startedAt)
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.log.Debug("capture state", zap.String("modality", string(e.modality)), zap.Stringer("from", e.state), zap.Stringer("to", s))
	e.state = s
	if e.observer != nil {
		e.observer(s)
	}
}

// Start 请求设备并开始录制
// 设备不可用或权限被拒绝时返回 ErrDeviceUnavailable，状态回到 Idle
// 录制进行中（或正在获取设备、上传）时返回 ErrBusy，不改变状态
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateAcquiring, StateRecording, StateUploading:
		e.mu.Unlock()
		return util.ErrBusy
	}

	// 重新录制会丢弃上一次的结果
	e.discardLocked()
	e.lastErr = nil

	if !e.device.Supported() {
		e.lastErr = fmt.Errorf("%w: capture is not supported on this device", util.ErrDeviceUnavailable)
		e.mu.Unlock()
		return e.lastErr
	}

	e.gen++
	gen := e.gen
	e.setState(StateAcquiring)
	e.mu.Unlock()

	stream, err := e.device.Acquire(ctx, e.constraints)
	if err == nil {
		// 视频需要等预览可以播放后才开始录制
		if rerr := stream.Ready(ctx); rerr != nil {
			StopTracks(stream)
			stream, err = nil, rerr
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		// 等待期间被 Release
		StopTracks(stream)
		return ErrReleased
	}

	if err != nil {
		e.lastErr = fmt.Errorf("%w: %v", util.ErrDeviceUnavailable, err)
		e.log.Warn("capture device unavailable", zap.String("modality", string(e.modality)), zap.Error(err))
		e.setState(StateIdle)
		return e.lastErr
	}

	recorderMime, blobMime := NegotiateMime(e.modality, e.device)
	rec, err := e.device.NewRecorder(stream, recorderMime)
	if err == nil {
		e.buf.reset()
		err = rec.Start(e.timeslice, e.buf.append)
	}
	if err != nil {
		StopTracks(stream)
		e.lastErr = fmt.Errorf("start recording: %w", err)
		e.setState(StateError)
		return e.lastErr
	}

	e.stream = stream
	e.recorder = rec
	e.blobMime = blobMime
	e.startedAt = e.clock.Now()
	e.timer = e.clock.AfterFunc(e.maxDuration, func() { e.autoStop(gen) })
	e.log.Info("recording started", zap.String("modality", string(e.modality)), zap.String("mime", blobMime))
	e.setState(StateRecording)
	return nil
}

func (e *Engine) autoStop(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state != StateRecording {
		return
	}
	e.log.Info("recording reached duration ceiling", zap.String("modality", string(e.modality)), zap.Duration("max", e.maxDuration))
	e.stopLocked(true)
}

// Stop 手动停止录制，返回合并后的 blob
func (e *Engine) Stop() (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRecording {
		return nil, ErrNotRecording
	}
	if err := e.stopLocked(false); err != nil {
		return nil, err
	}
	return e.blob, nil
}

func (e *Engine) stopLocked(auto bool) error {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	var recErr error
	if e.recorder != nil {
		recErr = e.recorder.Stop()
		e.recorder = nil
	}

	duration := e.clock.Now().Sub(e.startedAt)
	if duration > e.maxDuration {
		duration = e.maxDuration
	}
	data := e.buf.concat()
	e.buf.reset()

	// 停止后立即释放设备
	StopTracks(e.stream)
	e.stream = nil

	if recErr == nil && len(data) == 0 {
		recErr = ErrEmptyRecording
	}
	if recErr != nil {
		e.lastErr = fmt.Errorf("stop recording: %w", recErr)
		e.log.Warn("recording failed", zap.String("modality", string(e.modality)), zap.Error(recErr))
		e.setState(StateError)
		return e.lastErr
	}

	e.blob = &Blob{Data: data, MimeType: e.blobMime, Duration: duration, AutoStopped: auto}
	e.log.Info("recording stopped",
		zap.String("modality", string(e.modality)),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", duration),
		zap.Bool("auto", auto))
	e.setState(StateStopped)
	return nil
}

// Retake 丢弃当前录制和结果，回到 Idle，不会重新请求权限
func (e *Engine) Retake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateUploading {
		return util.ErrBusy
	}
	e.gen++
	e.discardLocked()
	e.lastErr = nil
	e.setState(StateIdle)
	return nil
}

// Release 离开页面时调用，任何状态下都同步释放设备
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.discardLocked()
	e.setState(StateIdle)
}

// discardLocked 停止定时器、录制器和所有轨道，清空缓冲和 blob
func (e *Engine) discardLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.recorder != nil {
		if err := e.recorder.Stop(); err != nil {
			e.log.Debug("discard recorder", zap.Error(err))
		}
		e.recorder = nil
	}
	StopTracks(e.stream)
	e.stream = nil
	e.buf.reset()
	e.blob = nil
}

// BeginUpload Stopped -> Uploading，返回待上传的 blob
func (e *Engine) BeginUpload() (*Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateStopped:
	case StateUploading:
		return nil, util.ErrBusy
	default:
		return nil, ErrNoBlob
	}
	e.setState(StateUploading)
	return e.blob, nil
}

// FinishUpload 上传失败时回到 Stopped 并保留 blob 以便重试，成功进入 Done
func (e *Engine) FinishUpload(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateUploading {
		return
	}
	if err != nil {
		e.lastErr = err
		e.setState(StateStopped)
		return
	}
	e.setState(StateDone)
}

// Reset 进入下一题前清空本地录制状态
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.discardLocked()
	e.lastErr = nil
	e.setState(StateIdle)
}
