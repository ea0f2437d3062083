package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"puls_survey/internal/util"
)

// FFmpegConfig 采集输入，格式和设备名直接传给 ffmpeg 的 -f 和 -i
type FFmpegConfig struct {
	VideoFormat string `yaml:"video_format"`
	VideoInput  string `yaml:"video_input"`
	AudioFormat string `yaml:"audio_format"`
	AudioInput  string `yaml:"audio_input"`
	// StopTimeout 发送中断信号后等待 ffmpeg 写完尾部的时间
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

func DefaultFFmpegConfig() FFmpegConfig {
	cfg := FFmpegConfig{StopTimeout: 5 * time.Second}
	switch runtime.GOOS {
	case "darwin":
		cfg.VideoFormat, cfg.VideoInput = "avfoundation", "0"
		cfg.AudioFormat, cfg.AudioInput = "avfoundation", ":0"
	case "windows":
		cfg.VideoFormat, cfg.VideoInput = "dshow", "video=Integrated Camera"
		cfg.AudioFormat, cfg.AudioInput = "dshow", "audio=Microphone"
	default:
		cfg.VideoFormat, cfg.VideoInput = "v4l2", "/dev/video0"
		cfg.AudioFormat, cfg.AudioInput = "alsa", "default"
	}
	return cfg
}

// mime 对应需要的编码器
var mimeEncoders = map[string][]string{
	"video/webm;codecs=vp9": {"libvpx-vp9"},
	"video/webm;codecs=vp8": {"libvpx"},
	"video/webm":            {"libvpx"},
	"video/mp4":             {"libx264", "aac"},
}

// FFmpegDevice 通过本机 ffmpeg 采集摄像头和麦克风
type FFmpegDevice struct {
	cfg FFmpegConfig
	log *zap.Logger

	once     sync.Once
	encoders map[string]bool
}

func NewFFmpegDevice(cfg FFmpegConfig, log *zap.Logger) *FFmpegDevice {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &FFmpegDevice{cfg: cfg, log: log}
}

func (d *FFmpegDevice) Supported() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Acquire ffmpeg 在录制开始时才真正打开设备，这里只检查设备是否存在
func (d *FFmpegDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &ffmpegStream{constraints: c}
	if c.Video {
		if err := d.checkInput(d.cfg.VideoFormat, d.cfg.VideoInput); err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, &ffmpegTrack{kind: "video", live: true})
	}
	if c.Audio {
		if err := d.checkInput(d.cfg.AudioFormat, d.cfg.AudioInput); err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, &ffmpegTrack{kind: "audio", live: true})
	}
	if len(s.tracks) == 0 {
		return nil, errors.New("no capture tracks requested")
	}
	return s, nil
}

func (d *FFmpegDevice) checkInput(format, input string) error {
	if input == "" {
		return fmt.Errorf("no %s input configured", format)
	}
	if format != "v4l2" {
		return nil
	}
	f, err := os.Open(input)
	if err != nil {
		// 权限不足或设备不存在
		return fmt.Errorf("open %s: %w", input, err)
	}
	return f.Close()
}

func (d *FFmpegDevice) IsTypeSupported(mimeType string) bool {
	required, ok := mimeEncoders[mimeType]
	if !ok {
		return false
	}
	d.once.Do(d.loadEncoders)
	for _, name := range required {
		if !d.encoders[name] {
			return false
		}
	}
	return true
}

func (d *FFmpegDevice) loadEncoders() {
	d.encoders = map[string]bool{}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		d.log.Warn("list ffmpeg encoders", zap.Error(err))
		return
	}
	d.encoders = parseEncoders(out)
}

// parseEncoders 解析 `ffmpeg -encoders` 输出，每行形如 " V....D libx264  libx264 H.264 ..."
func parseEncoders(out []byte) map[string]bool {
	encoders := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	started := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !started {
			started = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

func (d *FFmpegDevice) NewRecorder(s Stream, mimeType string) (Recorder, error) {
	fs, ok := s.(*ffmpegStream)
	if !ok {
		return nil, fmt.Errorf("stream %T was not acquired by ffmpeg", s)
	}
	return &ffmpegRecorder{cfg: d.cfg, log: d.log, stream: fs, output: outputArgs(fs.constraints.Video, mimeType)}, nil
}

// outputArgs mime 为空时视频用 webm/vp8，音频用 wav
func outputArgs(video bool, mimeType string) ffmpeg.KwArgs {
	if !video {
		return ffmpeg.KwArgs{"f": "wav"}
	}
	switch util.BaseMime(mimeType) {
	case util.MimeVideoMP4:
		return ffmpeg.KwArgs{"f": "mp4", "c:v": "libx264", "c:a": "aac", "movflags": "frag_keyframe+empty_moov"}
	}
	if strings.Contains(mimeType, "vp9") {
		return ffmpeg.KwArgs{"f": "webm", "c:v": "libvpx-vp9", "c:a": "libopus"}
	}
	return ffmpeg.KwArgs{"f": "webm", "c:v": "libvpx", "c:a": "libopus"}
}

type ffmpegTrack struct {
	kind string
	mu   sync.Mutex
	live bool
}

func (t *ffmpegTrack) Kind() string { return t.kind }

func (t *ffmpegTrack) Stop() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
}

func (t *ffmpegTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

type ffmpegStream struct {
	constraints Constraints
	tracks      []Track
}

func (s *ffmpegStream) Tracks() []Track { return s.tracks }

func (s *ffmpegStream) Ready(ctx context.Context) error { return ctx.Err() }

// sinkWriter 把 ffmpeg 标准输出按写入粒度交给 sink
type sinkWriter func([]byte)

func (w sinkWriter) Write(p []byte) (int, error) {
	w(p)
	return len(p), nil
}

type ffmpegRecorder struct {
	cfg    FFmpegConfig
	log    *zap.Logger
	stream *ffmpegStream
	output ffmpeg.KwArgs

	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan error
}

// Start timeslice 由 ffmpeg 的输出缓冲决定，这里只用于打开 flush_packets
func (r *ffmpegRecorder) Start(timeslice time.Duration, sink func([]byte)) error {
	if r.cmd != nil {
		return errors.New("recorder already started")
	}

	var inputs []*ffmpeg.Stream
	if r.stream.constraints.Video {
		inputs = append(inputs, ffmpeg.Input(r.cfg.VideoInput, ffmpeg.KwArgs{"f": r.cfg.VideoFormat}))
	}
	if r.stream.constraints.Audio {
		inputs = append(inputs, ffmpeg.Input(r.cfg.AudioInput, ffmpeg.KwArgs{"f": r.cfg.AudioFormat}))
	}

	kw := ffmpeg.KwArgs{}
	for k, v := range r.output {
		kw[k] = v
	}
	if timeslice > 0 {
		kw["flush_packets"] = 1
	}

	cmd := ffmpeg.Output(inputs, "pipe:", kw).GlobalArgs("-hide_banner", "-loglevel", "error").Compile()
	cmd.Stdout = sinkWriter(sink)
	cmd.Stderr = &r.stderr

	r.log.Debug("start ffmpeg", zap.Strings("args", cmd.Args))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	r.cmd = cmd
	r.done = make(chan error, 1)
	go func() { r.done <- cmd.Wait() }()
	return nil
}

// Stop 发送中断让 ffmpeg 写完容器尾部，超时后强制结束
func (r *ffmpegRecorder) Stop() error {
	if r.cmd == nil {
		return nil
	}
	defer func() { r.cmd = nil }()

	if err := r.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.log.Debug("interrupt ffmpeg", zap.Error(err))
	}

	var err error
	select {
	case err = <-r.done:
	case <-time.After(r.cfg.StopTimeout):
		r.cmd.Process.Kill()
		err = <-r.done
	}

	// ffmpeg 收到中断后以 255 退出，属于正常结束
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 255 {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(r.stderr.String()))
	}
	return nil
}
