// Package flow 问卷作答流程：登录、条款、个人资料、选择作答方式、作答、提交
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"puls_survey/internal/capture"
	"puls_survey/internal/model"
	"puls_survey/internal/session"
	"puls_survey/internal/util"
)

// Gateway 流程使用的网关接口，由 client.Client 实现
type Gateway interface {
	Login(ctx context.Context, username, password string) (*model.Session, error)
	ProfileQuestions(ctx context.Context, token string, surveyID int) ([]model.ProfileQuestion, error)
	AddProfileData(ctx context.Context, token string, sub model.ProfileSubmission) (*model.ProfileResult, error)
	Questions(ctx context.Context, token string, m model.Modality, studyType int) ([]model.SurveyQuestion, error)
	SubmitResults(ctx context.Context, token string, sub model.SurveySubmission) error
	CheckPhoneDuplicate(ctx context.Context, token, phone string) (bool, error)
}

// Uploader 由 upload.Pipeline 实现
type Uploader interface {
	Upload(ctx context.Context, token string, questionnaireID int, blob *capture.Blob) (model.Recording, error)
}

var ErrWrongScreen = errors.New("action not available on this screen")

type Controller struct {
	mu sync.Mutex

	gw       Gateway
	store    session.Store
	uploader Uploader
	device   capture.Device
	now      func() time.Time
	log      *zap.Logger

	checkDuplicatePhone bool
	engineOpts          []capture.Option

	screen           Screen
	notice           string
	profileQuestions []model.ProfileQuestion
	profileInputs    map[int]string
	questions        []model.SurveyQuestion
	answers          map[int]Answer
	index            int
	recordings       []model.Recording
	engine           *capture.Engine
	submitted        bool
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = l } }

func WithNow(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithDuplicatePhoneCheck 提交资料前调用查重接口
func WithDuplicatePhoneCheck(on bool) Option {
	return func(c *Controller) { c.checkDuplicatePhone = on }
}

// WithEngineOptions 创建录制引擎时附加的选项（测试中注入时钟）
func WithEngineOptions(opts ...capture.Option) Option {
	return func(c *Controller) { c.engineOpts = append(c.engineOpts, opts...) }
}

// NewController device 为 nil 时只能进行文字问卷
func NewController(gw Gateway, store session.Store, uploader Uploader, device capture.Device, opts ...Option) *Controller {
	c := &Controller{
		gw:       gw,
		store:    store,
		uploader: uploader,
		device:   device,
		now:      time.Now,
		log:      zap.NewNop(),
		screen:   ScreenLogin,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetLocked()
	return c
}

func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// Notice 最近一次失败给用户的提示，成功的操作会清空
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

func (c *Controller) fail(err error) error {
	c.notice = util.UserMessage(err)
	c.log.Info("flow action failed", zap.Stringer("screen", c.screen), zap.Error(err))
	return err
}

func (c *Controller) setScreen(s Screen) {
	if c.screen == s {
		return
	}
	// 离开录制页面时立即释放设备
	if c.engine != nil && c.screen.isModality() && !s.isModality() {
		c.engine.Release()
	}
	c.log.Debug("screen", zap.Stringer("from", c.screen), zap.Stringer("to", s))
	c.screen = s
}

// resetLocked 清空本次作答的内存状态
func (c *Controller) resetLocked() {
	if c.engine != nil {
		c.engine.Release()
		c.engine = nil
	}
	c.profileQuestions = nil
	c.profileInputs = map[int]string{}
	c.questions = nil
	c.answers = map[int]Answer{}
	c.index = 0
	c.recordings = nil
}

// Navigate 尝试进入 target，前置条件不满足时回退，返回实际到达的页面
func (c *Controller) Navigate(ctx context.Context, target Screen) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	landed, err := c.guard(ctx, target)
	if err != nil {
		c.log.Warn("screen guard", zap.Stringer("target", target), zap.Error(err))
	}
	if landed == ScreenLogin && target != ScreenLogin {
		c.resetLocked()
	}
	c.setScreen(landed)
	return landed, err
}

// require 当前页面的前置条件仍然满足，否则回退并返回 ErrWrongScreen
func (c *Controller) require(ctx context.Context, screens ...Screen) (*model.Session, error) {
	ok := false
	for _, s := range screens {
		if c.screen == s {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWrongScreen, c.screen)
	}
	landed, err := c.guard(ctx, c.screen)
	if err != nil {
		return nil, err
	}
	if landed != c.screen {
		c.setScreen(landed)
		return nil, fmt.Errorf("%w: redirected to %s", ErrWrongScreen, landed)
	}
	return session.Current(ctx, c.store)
}

func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(username) == "" || password == "" {
		return c.fail(util.NewValidationError(0, "Username and password are required"))
	}

	sess, err := c.gw.Login(ctx, username, password)
	if err != nil {
		return c.fail(err)
	}

	c.resetLocked()
	c.submitted = false
	if err := session.Begin(ctx, c.store, *sess); err != nil {
		return c.fail(err)
	}
	c.notice = ""
	c.log.Info("logged in", zap.String("org", sess.OrgName), zap.Int("survey_id", int(sess.SurveyID)))
	c.setScreen(ScreenHome)
	return nil
}

// Greeting 按小时返回 Morning / Afternoon / Evening
func Greeting(t time.Time) string {
	h := t.Hour()
	switch {
	case h >= 5 && h < 12:
		return "Morning"
	case h >= 12 && h < 18:
		return "Afternoon"
	}
	return "Evening"
}

func (c *Controller) Greeting() string { return Greeting(c.now()) }

// Session 当前登录数据，未登录时返回 session.ErrNoSession
func (c *Controller) Session(ctx context.Context) (*model.Session, error) {
	return session.Current(ctx, c.store)
}

func (c *Controller) AcceptTerms(ctx context.Context, accepted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.require(ctx, ScreenHome); err != nil {
		return err
	}
	if !accepted {
		return c.fail(util.NewValidationError(0, "Please accept the terms to proceed"))
	}
	if err := session.SetTermsAccepted(ctx, c.store, true); err != nil {
		return c.fail(err)
	}
	c.notice = ""
	c.setScreen(ScreenProfile)
	return nil
}

// Logout 清空会话并回到登录页
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.submitted = false
	c.notice = ""
	c.setScreen(ScreenLogin)
	return c.store.Clear(ctx)
}

// SelectModality 拉取题目，只保留 active；没有题目时停留在当前页
func (c *Controller) SelectModality(ctx context.Context, m model.Modality) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.require(ctx, ScreenTypeSelection)
	if err != nil {
		return err
	}

	all, err := c.gw.Questions(ctx, sess.AccessToken, m, sess.StudyTypeID())
	if err != nil {
		return c.fail(err)
	}
	active := model.ActiveQuestions(all)
	if m == model.ModalityText {
		active = c.renderable(active)
	}
	if len(active) == 0 {
		return c.fail(util.ErrNoQuestions)
	}

	var engine *capture.Engine
	if m != model.ModalityText {
		if c.device == nil {
			return c.fail(fmt.Errorf("%w: no capture device configured", util.ErrDeviceUnavailable))
		}
		opts := append([]capture.Option{capture.WithLogger(c.log.Named("capture"))}, c.engineOpts...)
		if engine, err = capture.NewEngine(m, c.device, opts...); err != nil {
			return c.fail(err)
		}
	}

	if err := session.SetModality(ctx, c.store, m); err != nil {
		return c.fail(err)
	}

	if c.engine != nil {
		c.engine.Release()
	}
	c.engine = engine
	c.questions = active
	c.answers = map[int]Answer{}
	c.index = 0
	c.recordings = nil
	c.notice = ""
	c.log.Info("survey selected", zap.String("modality", string(m)), zap.Int("questions", len(active)), zap.Int("fetched", len(all)))
	c.setScreen(ScreenFor(m))
	return nil
}

// renderable 去掉无法识别类型的题目
func (c *Controller) renderable(qs []model.SurveyQuestion) []model.SurveyQuestion {
	out := qs[:0:0]
	for _, q := range qs {
		if _, err := q.Kind(); err != nil {
			c.log.Warn("skip question", zap.Int("questionnaire_id", q.QuestionnaireID), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out
}

// Questions 当前作答方式下的 active 题目
func (c *Controller) Questions() []model.SurveyQuestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.SurveyQuestion, len(c.questions))
	copy(out, c.questions)
	return out
}

// submitLocked 构建并提交结果；成功后清空会话进入 Success，失败保留答案以便重试
func (c *Controller) submitLocked(ctx context.Context, sess *model.Session, results []model.SurveyResult) error {
	shopperID, _, err := session.ShopperID(ctx, c.store)
	if err != nil {
		return c.fail(err)
	}

	sub := model.SurveySubmission{
		AddSurveyResults: results,
		SurveyID:         int(sess.SurveyID),
		StudyTypeID:      sess.StudyTypeID(),
		StoreID:          int(sess.StoreID),
		CreatedByID:      shopperID,
	}
	if err := c.gw.SubmitResults(ctx, sess.AccessToken, sub); err != nil {
		if !errors.Is(err, util.ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", util.ErrSubmissionFailed, err)
		}
		return c.fail(err)
	}

	c.log.Info("survey submitted", zap.Int("survey_id", sub.SurveyID), zap.Int("answers", len(results)), zap.Int("created_by_id", shopperID))
	c.resetLocked()
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("clear session", zap.Error(err))
	}
	c.submitted = true
	c.notice = ""
	c.setScreen(ScreenSuccess)
	return nil
}

// BackToLogin Success 页返回登录
func (c *Controller) BackToLogin(ctx context.Context) error {
	return c.Logout(ctx)
}
