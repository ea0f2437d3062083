package model

import (
	"fmt"
	"strings"
)

// QuestionKind 题目类型，封闭集合，由后端字符串解析一次
type QuestionKind int

const (
	KindSingleChoice QuestionKind = iota + 1
	KindMultipleChoice
	KindFreeText
	KindDropdown
	KindEmail
)

func (k QuestionKind) String() string {
	switch k {
	case KindSingleChoice:
		return "Single Choice"
	case KindMultipleChoice:
		return "Multiple Choice"
	case KindFreeText:
		return "Free Text"
	case KindDropdown:
		return "dropdown"
	case KindEmail:
		return "email"
	}
	return fmt.Sprintf("QuestionKind(%d)", int(k))
}

// ParseQuestionKind 解析后端的 question_type_value
func ParseQuestionKind(value string) (QuestionKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "single choice":
		return KindSingleChoice, nil
	case "multiple choice":
		return KindMultipleChoice, nil
	case "free text":
		return KindFreeText, nil
	case "dropdown":
		return KindDropdown, nil
	case "email":
		return KindEmail, nil
	}
	return 0, fmt.Errorf("unknown question type %q", value)
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type ProfileChoice struct {
	ID     int    `json:"profile_choice_id"`
	Values string `json:"values"`
}

type ProfileQuestion struct {
	ID                int             `json:"profile_question_id"`
	Question          string          `json:"question"`
	QuestionType      int             `json:"question_type"`
	QuestionTypeValue string          `json:"question_type_value"`
	QuestionStatus    string          `json:"question_status"`
	Choices           []ProfileChoice `json:"choices"`
}

func (q ProfileQuestion) Kind() (QuestionKind, error) {
	return ParseQuestionKind(q.QuestionTypeValue)
}

// Label 首字母大写后的题目文字
func (q ProfileQuestion) Label() string {
	words := strings.Split(q.Question, " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (q ProfileQuestion) IsNameField() bool {
	return strings.Contains(strings.ToLower(q.Question), "name")
}

func (q ProfileQuestion) IsPhoneField() bool {
	l := strings.ToLower(q.Question)
	return strings.Contains(l, "phone") || strings.Contains(l, "mobile")
}

type Choice struct {
	ID                int    `json:"choice_id"`
	Value             string `json:"value"`
	SecondaryLanguage string `json:"secondary_language,omitempty"`
}

type SurveyQuestion struct {
	QuestionnaireID   int      `json:"questionnaire_id"`
	Question          string   `json:"question"`
	SecondaryQuestion string   `json:"secondary_question,omitempty"`
	QuestionTypeValue string   `json:"question_type_value"`
	QuestionStatus    string   `json:"question_status"`
	Choices           []Choice `json:"choices"`
}

func (q SurveyQuestion) Kind() (QuestionKind, error) {
	return ParseQuestionKind(q.QuestionTypeValue)
}

func (q SurveyQuestion) IsActive() bool {
	return q.QuestionStatus == StatusActive
}

func (q SurveyQuestion) HasChoice(id int) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// ActiveQuestions 过滤掉非 active 的题目，保持原有顺序
func ActiveQuestions(questions []SurveyQuestion) []SurveyQuestion {
	active := make([]SurveyQuestion, 0, len(questions))
	for _, q := range questions {
		if q.IsActive() {
			active = append(active, q)
		}
	}
	return active
}

// Modality 作答方式
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case ModalityText, ModalityAudio, ModalityVideo:
		return Modality(s), nil
	}
	return "", fmt.Errorf("unknown modality %q", s)
}
