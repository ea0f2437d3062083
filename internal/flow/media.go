package flow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"puls_survey/internal/capture"
	"puls_survey/internal/model"
	"puls_survey/internal/util"
)

// CurrentQuestion 音视频问卷当前题目及序号（从 0 开始）
func (c *Controller) CurrentQuestion() (q model.SurveyQuestion, index, total int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.screen.isModality() || c.screen == ScreenText || c.index >= len(c.questions) {
		return model.SurveyQuestion{}, c.index, len(c.questions), false
	}
	return c.questions[c.index], c.index, len(c.questions), true
}

// Recordings 已上传的录制
func (c *Controller) Recordings() []model.Recording {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Recording, len(c.recordings))
	copy(out, c.recordings)
	return out
}

// Engine 当前录制引擎，文字问卷或未选择作答方式时为 nil
func (c *Controller) Engine() *capture.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

func (c *Controller) mediaEngine(ctx context.Context) (*model.Session, *capture.Engine, error) {
	sess, err := c.require(ctx, ScreenAudio, ScreenVideo)
	if err != nil {
		return nil, nil, err
	}
	if c.engine == nil {
		return nil, nil, fmt.Errorf("%w: no capture engine", util.ErrDeviceUnavailable)
	}
	return sess, c.engine, nil
}

// StartRecording 设备不可用或权限被拒绝时给出提示，页面保持不变
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, e, err := c.mediaEngine(ctx)
	if err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return c.fail(err)
	}
	c.notice = ""
	return nil
}

func (c *Controller) StopRecording(ctx context.Context) (*capture.Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, e, err := c.mediaEngine(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := e.Stop()
	if err != nil {
		return nil, c.fail(err)
	}
	return blob, nil
}

// Retake 丢弃当前录制回到 Idle
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, e, err := c.mediaEngine(ctx)
	if err != nil {
		return err
	}
	if err := e.Retake(); err != nil {
		return c.fail(err)
	}
	c.notice = ""
	return nil
}

// Next 上传当前录制；成功后进入下一题，最后一题上传后提交问卷
// 上传失败时题目序号不变，保留录制以便重试
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, e, err := c.mediaEngine(ctx)
	if err != nil {
		return err
	}

	// 所有题目已上传，只是上次提交失败
	if len(c.recordings) == len(c.questions) {
		return c.submitLocked(ctx, sess, BuildMediaResults(c.recordings))
	}

	blob, err := e.BeginUpload()
	if err != nil {
		if errors.Is(err, capture.ErrNoBlob) {
			err = util.NewValidationError(c.questions[c.index].QuestionnaireID, "Please record your answer before continuing")
		}
		return c.fail(err)
	}

	q := c.questions[c.index]
	rec, err := c.uploader.Upload(ctx, sess.AccessToken, q.QuestionnaireID, blob)
	e.FinishUpload(err)
	if err != nil {
		return c.fail(err)
	}

	c.recordings = append(c.recordings, rec)
	c.notice = ""
	c.log.Info("answer recorded",
		zap.Int("questionnaire_id", q.QuestionnaireID),
		zap.String("key", rec.Key),
		zap.Int("index", c.index),
		zap.Int("total", len(c.questions)))

	if c.index < len(c.questions)-1 {
		c.index++
		e.Reset()
		return nil
	}
	return c.submitLocked(ctx, sess, BuildMediaResults(c.recordings))
}
