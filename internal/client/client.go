// Package client 问卷流程访问网关的 HTTP 客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"puls_survey/internal/model"
	"puls_survey/internal/util"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New baseURL 为网关地址，例如 http://localhost:3000/api
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do 发送请求，2xx 时把响应解码到 out，其他状态返回 *util.UpstreamError
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return fmt.Errorf("%w: %v", util.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", util.ErrTransport, err)
	}
	c.log.Debug("gateway request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ue := &util.UpstreamError{Status: resp.StatusCode, Body: body}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			switch {
			case eb.Detail != "":
				ue.Detail = eb.Detail
			case eb.Error != "":
				ue.Detail = eb.Error
			}
		}
		return ue
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", util.ErrUpstream, req.URL.Path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, token, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", util.MimeJSON)
	return c.do(req, out)
}

// Login 表单方式提交用户名和密码
func (c *Client) Login(ctx context.Context, username, password string) (*model.Session, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/login", "", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", util.MimeFormURL)

	var s model.Session
	if err := c.do(req, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response carries no access token", util.ErrUpstream)
	}
	return &s, nil
}

func (c *Client) ProfileQuestions(ctx context.Context, token string, surveyID int) ([]model.ProfileQuestion, error) {
	q := url.Values{"survey_id": {strconv.Itoa(surveyID)}}
	req, err := c.newRequest(ctx, http.MethodGet, "/profile-questions?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	var out []model.ProfileQuestion
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddProfileData(ctx context.Context, token string, sub model.ProfileSubmission) (*model.ProfileResult, error) {
	var out model.ProfileResult
	if err := c.postJSON(ctx, "/add-profile-data", token, sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// questionList 后端有时直接返回数组，有时包在 questions 字段里
type questionList []model.SurveyQuestion

func (l *questionList) UnmarshalJSON(data []byte) error {
	var arr []model.SurveyQuestion
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var wrapped struct {
		Questions []model.SurveyQuestion `json:"questions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Questions
	return nil
}

// Questions 返回全部题目（包括非 active），过滤由调用方完成
func (c *Client) Questions(ctx context.Context, token string, m model.Modality, studyType int) ([]model.SurveyQuestion, error) {
	q := url.Values{"type": {string(m)}, "studyType": {strconv.Itoa(studyType)}}
	req, err := c.newRequest(ctx, http.MethodGet, "/questions?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	var out questionList
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitResults(ctx context.Context, token string, sub model.SurveySubmission) error {
	if err := c.postJSON(ctx, "/survey_results", token, sub, nil); err != nil {
		return fmt.Errorf("%w: %w", util.ErrSubmissionFailed, err)
	}
	return nil
}

// CheckPhoneDuplicate 网关在任何失败时都返回 exists=false
func (c *Client) CheckPhoneDuplicate(ctx context.Context, token, phone string) (bool, error) {
	var out model.PhoneDuplicateResult
	if err := c.postJSON(ctx, "/check_phone_duplicate", token, map[string]string{"phone_number": phone}, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Health 后端不可用时返回 *util.UpstreamError（503）
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// UploadFile multipart 上传到 /upload-audio 或 /upload-video
func (c *Client) UploadFile(ctx context.Context, token string, m model.Modality, fileName string, questionnaireID int, data []byte) (*model.UploadResult, error) {
	if m != model.ModalityAudio && m != model.ModalityVideo {
		return nil, fmt.Errorf("%w: modality %q has no upload endpoint", util.ErrUploadFailed, m)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.WriteField("questionnaireId", strconv.Itoa(questionnaireID)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload-"+string(m), token, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out model.UploadResult
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrUploadFailed, err)
	}
	if !out.Success || out.Key == "" {
		return nil, fmt.Errorf("%w: gateway returned no object key", util.ErrUploadFailed)
	}
	return &out, nil
}

// IsUnauthorized 凭证缺失或过期
func IsUnauthorized(err error) bool {
	return errors.Is(err, util.ErrAuthMissing)
}
