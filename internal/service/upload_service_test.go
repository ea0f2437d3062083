package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"puls_survey/internal/config"
	"puls_survey/internal/model"
	"puls_survey/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	ext, ct := objectFormat(model.ModalityVideo, "clip.webm")
	assert.Equal(t, "video_1700000000123_12.webm", ObjectKey(model.ModalityVideo, 12, at, ext))
	assert.Equal(t, util.MimeVideoWebm, ct)

	ext, ct = objectFormat(model.ModalityVideo, "CLIP.MP4")
	assert.Equal(t, ".mp4", ext)
	assert.Equal(t, util.MimeVideoMP4, ct)

	ext, ct = objectFormat(model.ModalityVideo, "blob")
	assert.Equal(t, ".webm", ext)
	assert.Equal(t, util.MimeVideoWebm, ct)

	ext, ct = objectFormat(model.ModalityAudio, "anything.ogg")
	assert.Equal(t, "audio_1700000000123_7.wav", ObjectKey(model.ModalityAudio, 7, at, ext))
	assert.Equal(t, util.MimeAudioWav, ct)
}

func TestMediaService_Check(t *testing.T) {
	s := NewMediaService(32)

	cases := []struct {
		name  string
		info  *util.MediaInfo
		err   error
		video bool
		ok    bool
	}{
		{name: "video within limit", info: &util.MediaInfo{HasVideo: true, HasAudio: true, Duration: 30.4}, video: true, ok: true},
		{name: "webm without duration", info: &util.MediaInfo{HasVideo: true}, video: true, ok: true},
		{name: "too long", info: &util.MediaInfo{HasVideo: true, Duration: 45}, video: true},
		{name: "video without video stream", info: &util.MediaInfo{HasAudio: true}, video: true},
		{name: "audio", info: &util.MediaInfo{HasAudio: true, Duration: 12}, ok: true},
		{name: "audio without audio stream", info: &util.MediaInfo{HasVideo: true}},
		{name: "probe failure", err: errors.New("invalid data")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s.probe = func(string) (*util.MediaInfo, error) { return tc.info, tc.err }
			_, err := s.Check("ignored", tc.video)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrMediaRejected)
		})
	}
}

func fileHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func TestUploadService_Save(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: dir, MaxUploadMB: 1}}
	s := NewUploadService(cfg, NewStorageService(cfg))
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := s.Save(context.Background(), model.ModalityAudio, 9, fileHeader(t, "a.wav", []byte("RIFF-data")))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "audio_1700000000000_9.wav", res.Key)
	assert.Equal(t, "Audio uploaded successfully", res.Message)
	assert.Equal(t, "/uploads/audio_1700000000000_9.wav", res.Response["location"])

	data, err := os.ReadFile(filepath.Join(dir, res.Key))
	require.NoError(t, err)
	assert.Equal(t, "RIFF-data", string(data))

	_, err = s.Save(context.Background(), model.ModalityVideo, 9, fileHeader(t, "big.webm", bytes.Repeat([]byte("x"), 2<<20)))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = s.Save(context.Background(), model.ModalityVideo, 0, fileHeader(t, "v.webm", []byte("webm")))
	assert.ErrorIs(t, err, ErrInvalidQuestion)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadService_RejectsLongRecording(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: dir, MaxDuration: 32}}
	s := NewUploadService(cfg, NewStorageService(cfg))
	s.probe = true
	s.Media.probe = func(string) (*util.MediaInfo, error) {
		return &util.MediaInfo{HasVideo: true, Duration: 90}, nil
	}

	_, err := s.Save(context.Background(), model.ModalityVideo, 3, fileHeader(t, "v.webm", []byte("webm")))
	assert.ErrorIs(t, err, ErrMediaRejected)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorageService_FallsBackToLocal(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()}}
	s := NewStorageService(cfg)
	assert.Equal(t, util.StorageLocal, s.Provider.Name())
	assert.Equal(t, "/uploads/a/b.wav", s.Provider.GetURL("a/b.wav"))

	// 未配置 endpoint 时 minio 客户端创建失败
	cfg.Storage.Type = util.StorageMinio
	cfg.Storage.MinioEndpoint = ""
	assert.Equal(t, util.StorageLocal, NewStorageService(cfg).Provider.Name())
}
