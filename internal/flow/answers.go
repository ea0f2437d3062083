package flow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"puls_survey/internal/model"
	"puls_survey/internal/util"
)

// Answer 文字问卷的一题答案：单选/多选使用 ChoiceIDs，自由文本使用 Text
type Answer struct {
	ChoiceIDs []int
	Text      string
}

const msgAnswerAll = "Please answer all questions before submitting"

// ValidateAnswers 每个 active 题目都需要一个符合类型的答案
func ValidateAnswers(questions []model.SurveyQuestion, answers map[int]Answer) error {
	for _, q := range questions {
		kind, err := q.Kind()
		if err != nil {
			return util.NewValidationError(q.QuestionnaireID, "%s", msgAnswerAll)
		}
		a, ok := answers[q.QuestionnaireID]
		if !ok {
			return util.NewValidationError(q.QuestionnaireID, "%s", msgAnswerAll)
		}
		switch kind {
		case model.KindSingleChoice, model.KindDropdown:
			if len(a.ChoiceIDs) != 1 {
				return util.NewValidationError(q.QuestionnaireID, "%s", msgAnswerAll)
			}
		case model.KindMultipleChoice:
			if len(a.ChoiceIDs) == 0 {
				return util.NewValidationError(q.QuestionnaireID, "%s", msgAnswerAll)
			}
		case model.KindFreeText, model.KindEmail:
			if strings.TrimSpace(a.Text) == "" {
				return util.NewValidationError(q.QuestionnaireID, "%s", msgAnswerAll)
			}
			if utf8.RuneCountInString(a.Text) > util.MaxFreeTextLength {
				return util.NewValidationError(q.QuestionnaireID, "Text exceeds the maximum allowed length of %d characters", util.MaxFreeTextLength)
			}
		}
	}
	return nil
}

// BuildTextResults 按题目顺序生成提交条目，choice_id 始终为数组
func BuildTextResults(questions []model.SurveyQuestion, answers map[int]Answer) []model.SurveyResult {
	results := make([]model.SurveyResult, 0, len(questions))
	for _, q := range questions {
		a, ok := answers[q.QuestionnaireID]
		if !ok {
			continue
		}
		r := model.SurveyResult{QuestionnaireID: q.QuestionnaireID, ChoiceID: []int{}}
		kind, _ := q.Kind()
		switch kind {
		case model.KindSingleChoice, model.KindDropdown, model.KindMultipleChoice:
			r.ChoiceID = append(r.ChoiceID, a.ChoiceIDs...)
		case model.KindFreeText, model.KindEmail:
			r.InputValue = a.Text
		}
		results = append(results, r)
	}
	return results
}

// BuildMediaResults 每条录制对应一条结果，file_link 为对象 key
func BuildMediaResults(recordings []model.Recording) []model.SurveyResult {
	results := make([]model.SurveyResult, 0, len(recordings))
	for _, rec := range recordings {
		results = append(results, model.SurveyResult{
			QuestionnaireID: rec.QuestionnaireID,
			ChoiceID:        []int{},
			FileLink:        rec.Key,
		})
	}
	return results
}

func (c *Controller) findQuestion(id int) (model.SurveyQuestion, model.QuestionKind, error) {
	for _, q := range c.questions {
		if q.QuestionnaireID == id {
			kind, err := q.Kind()
			return q, kind, err
		}
	}
	return model.SurveyQuestion{}, 0, fmt.Errorf("question %d is not part of this survey", id)
}

// SelectChoice 单选题（包括下拉）选择一项
func (c *Controller) SelectChoice(ctx context.Context, questionID, choiceID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.require(ctx, ScreenText); err != nil {
		return err
	}
	q, kind, err := c.findQuestion(questionID)
	if err != nil {
		return err
	}
	if kind != model.KindSingleChoice && kind != model.KindDropdown {
		return fmt.Errorf("question %d is %s, not single choice", questionID, kind)
	}
	if !q.HasChoice(choiceID) {
		return fmt.Errorf("choice %d does not belong to question %d", choiceID, questionID)
	}
	c.answers[questionID] = Answer{ChoiceIDs: []int{choiceID}}
	return nil
}

// ToggleChoice 多选题勾选或取消一项，保持勾选顺序
func (c *Controller) ToggleChoice(ctx context.Context, questionID, choiceID int, selected bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.require(ctx, ScreenText); err != nil {
		return err
	}
	q, kind, err := c.findQuestion(questionID)
	if err != nil {
		return err
	}
	if kind != model.KindMultipleChoice {
		return fmt.Errorf("question %d is %s, not multiple choice", questionID, kind)
	}
	if !q.HasChoice(choiceID) {
		return fmt.Errorf("choice %d does not belong to question %d", choiceID, questionID)
	}

	current := c.answers[questionID].ChoiceIDs
	ids := make([]int, 0, len(current)+1)
	for _, id := range current {
		if id != choiceID {
			ids = append(ids, id)
		}
	}
	if selected {
		ids = append(ids, choiceID)
	}
	if len(ids) == 0 {
		delete(c.answers, questionID)
		return nil
	}
	c.answers[questionID] = Answer{ChoiceIDs: ids}
	return nil
}

// SetText 自由文本答案，长度在提交时校验
func (c *Controller) SetText(ctx context.Context, questionID int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.require(ctx, ScreenText); err != nil {
		return err
	}
	_, kind, err := c.findQuestion(questionID)
	if err != nil {
		return err
	}
	if kind != model.KindFreeText && kind != model.KindEmail {
		return fmt.Errorf("question %d is %s, not free text", questionID, kind)
	}
	c.answers[questionID] = Answer{Text: text}
	return nil
}

// Answers 当前已填写的答案
func (c *Controller) Answers() map[int]Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]Answer, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// SubmitText 全部题目作答后提交
func (c *Controller) SubmitText(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.require(ctx, ScreenText)
	if err != nil {
		return err
	}
	if err := ValidateAnswers(c.questions, c.answers); err != nil {
		return c.fail(err)
	}
	return c.submitLocked(ctx, sess, BuildTextResults(c.questions, c.answers))
}
