package flow

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"puls_survey/internal/model"
	"puls_survey/internal/session"
	"puls_survey/internal/util"
)

var (
	nameRegex  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	phoneRegex = regexp.MustCompile(`^[0-9]{10}$`)
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateProfile 按题目顺序校验，返回第一处错误
func ValidateProfile(questions []model.ProfileQuestion, inputs map[int]string) error {
	for _, q := range questions {
		value := strings.TrimSpace(inputs[q.ID])
		if value == "" {
			return util.NewValidationError(q.ID, "Please fill out %s", q.Question)
		}

		kind, err := q.Kind()
		if err != nil {
			continue
		}
		switch kind {
		case model.KindFreeText:
			if q.IsNameField() {
				if len(value) < 3 {
					return util.NewValidationError(q.ID, "Name must be at least 3 characters long")
				}
				if !nameRegex.MatchString(value) {
					return util.NewValidationError(q.ID, "Name can only contain letters and spaces")
				}
			}
			if q.IsPhoneField() && !phoneRegex.MatchString(value) {
				return util.NewValidationError(q.ID, "Mobile number must be exactly 10 digits")
			}
		case model.KindEmail:
			if !emailRegex.MatchString(value) {
				return util.NewValidationError(q.ID, "Please enter a valid email address")
			}
		case model.KindSingleChoice, model.KindMultipleChoice, model.KindDropdown:
		}
	}
	return nil
}

// BuildProfileSubmission 下拉题把所选项放进 choices，其余题只填 input_value
func BuildProfileSubmission(sess *model.Session, questions []model.ProfileQuestion, inputs map[int]string) model.ProfileSubmission {
	sub := model.ProfileSubmission{
		Questions: make([]model.ProfileAnswer, 0, len(questions)),
		PhoneCode: util.PhoneCode,
		SurveyID:  int(sess.SurveyID),
	}
	if len(sess.Subtypes) > 0 {
		id := sess.Subtypes[0].ID
		sub.StudyTypeID = &id
	}
	for _, q := range questions {
		value := strings.TrimSpace(inputs[q.ID])
		answer := model.ProfileAnswer{QuestionID: q.ID, Choices: []string{}, InputValue: value}
		if kind, _ := q.Kind(); kind == model.KindDropdown && value != "" {
			answer.Choices = []string{value}
		}
		sub.Questions = append(sub.Questions, answer)
	}
	return sub
}

// LoadProfile 拉取个人资料题目
func (c *Controller) LoadProfile(ctx context.Context) ([]model.ProfileQuestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.require(ctx, ScreenProfile)
	if err != nil {
		return nil, err
	}
	questions, err := c.gw.ProfileQuestions(ctx, sess.AccessToken, int(sess.SurveyID))
	if err != nil {
		return nil, c.fail(err)
	}

	c.profileQuestions = questions
	c.profileInputs = map[int]string{}
	c.notice = ""
	out := make([]model.ProfileQuestion, len(questions))
	copy(out, questions)
	return out, nil
}

// SetProfileInput 手机号输入只保留数字并截断到 10 位，返回实际保存的值
func (c *Controller) SetProfileInput(ctx context.Context, questionID int, value string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.require(ctx, ScreenProfile); err != nil {
		return "", err
	}
	for _, q := range c.profileQuestions {
		if q.ID != questionID {
			continue
		}
		if kind, _ := q.Kind(); kind == model.KindFreeText && q.IsPhoneField() {
			value = util.DigitsOnly(value, 10)
		}
		break
	}
	c.profileInputs[questionID] = value
	return value, nil
}

func (c *Controller) SubmitProfile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.require(ctx, ScreenProfile)
	if err != nil {
		return err
	}
	if err := ValidateProfile(c.profileQuestions, c.profileInputs); err != nil {
		return c.fail(err)
	}

	if c.checkDuplicatePhone {
		if err := c.checkPhone(ctx, sess.AccessToken); err != nil {
			return c.fail(err)
		}
	}

	res, err := c.gw.AddProfileData(ctx, sess.AccessToken, BuildProfileSubmission(sess, c.profileQuestions, c.profileInputs))
	if err != nil {
		return c.fail(err)
	}
	if err := session.SetShopperID(ctx, c.store, int(res.CustomerProfileID)); err != nil {
		return c.fail(err)
	}

	c.log.Info("profile saved", zap.Int("customer_profile_id", int(res.CustomerProfileID)))
	c.notice = ""
	c.setScreen(ScreenTypeSelection)
	return nil
}

// checkPhone 查重接口失败时按未重复处理
func (c *Controller) checkPhone(ctx context.Context, token string) error {
	for _, q := range c.profileQuestions {
		if kind, _ := q.Kind(); kind != model.KindFreeText || !q.IsPhoneField() {
			continue
		}
		phone := strings.TrimSpace(c.profileInputs[q.ID])
		exists, err := c.gw.CheckPhoneDuplicate(ctx, token, phone)
		if err != nil {
			c.log.Warn("phone duplicate check", zap.Error(err))
			continue
		}
		if exists {
			return util.NewValidationError(q.ID, "This mobile number has already been registered")
		}
	}
	return nil
}
