package model

import "encoding/json"

// Subtype 研究类型（study type），登录时由后端下发
type Subtype struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Session 登录后的会话数据，会话期间只读
type Session struct {
	AccessToken     string    `json:"access_token"`
	SurveyID        FlexInt   `json:"survey_id"`
	StoreID         FlexInt   `json:"store_id"`
	OrgName         string    `json:"org_name"`
	Subtypes        []Subtype `json:"subtypes"`
	Logo            string    `json:"logo"`
	SurveyTypeValue string    `json:"survey_type_value"`
}

// StudyTypeID 返回第一个研究类型，没有时返回 0
func (s *Session) StudyTypeID() int {
	if s == nil || len(s.Subtypes) == 0 {
		return 0
	}
	return s.Subtypes[0].ID
}

// ExperienceTitle 问卷页面标题
func (s *Session) ExperienceTitle() string {
	if s.SurveyTypeValue == "shopper" {
		return "Shopper Experience"
	}
	return "Consumer Experience"
}

// FallbackSession 上游登录返回非 JSON 时的占位会话，仅在 gateway.login_fallback 打开时使用
func FallbackSession() Session {
	return Session{
		AccessToken:     "mock_token",
		SurveyID:        45,
		StoreID:         1,
		OrgName:         "Test Organization",
		Subtypes:        []Subtype{{ID: 1, Name: "Customer Survey"}},
		Logo:            "",
		SurveyTypeValue: "customer",
	}
}

// FlexInt 兼容后端时而返回数字时而返回字符串的整型字段
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var n json.Number
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n = json.Number(s)
	} else {
		n = json.Number(data)
	}
	v, err := n.Int64()
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}
