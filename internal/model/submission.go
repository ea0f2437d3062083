package model

// SurveyResult AddSurveyResults 中的一条
// choice_id 始终输出数组（自由文本为空数组），file_link 为对象存储 key
type SurveyResult struct {
	QuestionnaireID int    `json:"questionnaire_id"`
	ChoiceID        []int  `json:"choice_id"`
	InputValue      string `json:"input_value"`
	FileLink        string `json:"file_link"`
}

type SurveySubmission struct {
	AddSurveyResults []SurveyResult `json:"AddSurveyResults"`
	SurveyID         int            `json:"survey_id"`
	StudyTypeID      int            `json:"studytype_id"`
	StoreID          int            `json:"store_id"`
	CreatedByID      int            `json:"created_by_id"`
}

type ProfileAnswer struct {
	QuestionID int      `json:"question_id"`
	Choices    []string `json:"choices"`
	InputValue string   `json:"input_value"`
}

type ProfileSubmission struct {
	Questions   []ProfileAnswer `json:"questions"`
	PhoneCode   string          `json:"phone_code"`
	SurveyID    int             `json:"survey_id"`
	StudyTypeID *int            `json:"studytype_id"`
}

// ProfileResult add_Profile_data 的响应，customer_profile_id 即后续提交的 created_by_id
type ProfileResult struct {
	CustomerProfileID FlexInt `json:"customer_profile_id"`
}

type PhoneDuplicateResult struct {
	Exists bool `json:"exists"`
}

// Recording 上传完成的音视频答案
type Recording struct {
	QuestionnaireID int            `json:"questionnaireId"`
	Key             string         `json:"key"`
	UploadResponse  map[string]any `json:"uploadResponse,omitempty"`
}

// UploadResult 上传接口响应
type UploadResult struct {
	Success  bool           `json:"success"`
	Key      string         `json:"key"`
	Message  string         `json:"message"`
	Response map[string]any `json:"response,omitempty"`
}
