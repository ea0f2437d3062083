// Package upload 把录制结果上传到网关并生成 Recording
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"puls_survey/internal/capture"
	"puls_survey/internal/model"
	"puls_survey/internal/util"
)

// Uploader 由 client.Client 实现
type Uploader interface {
	UploadFile(ctx context.Context, token string, m model.Modality, fileName string, questionnaireID int, data []byte) (*model.UploadResult, error)
}

type Pipeline struct {
	up  Uploader
	now func() time.Time
	log *zap.Logger
}

func NewPipeline(up Uploader, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{up: up, now: time.Now, log: log}
}

// ModalityOf 根据 blob 的 MIME 判断作答方式
func ModalityOf(mimeType string) (model.Modality, error) {
	switch {
	case util.IsVideo(mimeType):
		return model.ModalityVideo, nil
	case util.IsAudio(mimeType):
		return model.ModalityAudio, nil
	}
	return "", fmt.Errorf("unsupported media type %q", mimeType)
}

// ObjectName <modality>_<毫秒时间戳>_<题目ID><扩展名>
func ObjectName(m model.Modality, mimeType string, questionnaireID int, t time.Time) string {
	return fmt.Sprintf("%s_%d_%d%s", m, t.UnixMilli(), questionnaireID, util.ExtensionFor(mimeType))
}

// Upload 整体上传，没有断点续传；失败后用同一个 blob 重新调用即可
func (p *Pipeline) Upload(ctx context.Context, token string, questionnaireID int, blob *capture.Blob) (model.Recording, error) {
	if blob == nil || len(blob.Data) == 0 {
		return model.Recording{}, fmt.Errorf("%w: empty recording", util.ErrUploadFailed)
	}
	m, err := ModalityOf(blob.MimeType)
	if err != nil {
		return model.Recording{}, fmt.Errorf("%w: %v", util.ErrUploadFailed, err)
	}

	name := ObjectName(m, blob.MimeType, questionnaireID, p.now())
	start := time.Now()
	res, err := p.up.UploadFile(ctx, token, m, name, questionnaireID, blob.Data)
	if err != nil {
		p.log.Warn("upload failed",
			zap.String("object", name),
			zap.Int("questionnaire_id", questionnaireID),
			zap.Error(err))
		if !errors.Is(err, util.ErrUploadFailed) {
			err = fmt.Errorf("%w: %w", util.ErrUploadFailed, err)
		}
		return model.Recording{}, err
	}

	p.log.Info("upload finished",
		zap.String("object", name),
		zap.String("key", res.Key),
		zap.Int("bytes", len(blob.Data)),
		zap.Duration("latency", time.Since(start)))

	return model.Recording{
		QuestionnaireID: questionnaireID,
		Key:             res.Key,
		UploadResponse: map[string]any{
			"success":  res.Success,
			"key":      res.Key,
			"message":  res.Message,
			"response": res.Response,
		},
	}, nil
}
