package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"puls_survey/internal/config"
	"puls_survey/internal/model"
	"puls_survey/internal/util"
	"puls_survey/pkg/logger"
	"puls_survey/pkg/monitoring"
	"puls_survey/pkg/tracing"

	"go.uber.org/zap"
)

// Upstream 转发目标
type Upstream int

const (
	// UpstreamBackend 主 API：登录、资料、题目、提交
	UpstreamBackend Upstream = iota
	// UpstreamLegacy 旧版服务：健康检查、手机号查重、音频题目
	UpstreamLegacy
)

// UpstreamResponse 上游的原始响应
type UpstreamResponse struct {
	Status      int
	Body        []byte
	ContentType string
}

func (r *UpstreamResponse) OK() bool { return r.Status >= 200 && r.Status <= 299 }

// RelayRequest 一次转发，Route 用于日志和监控
type RelayRequest struct {
	Route         string
	Upstream      Upstream
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	ContentType   string
	Body          []byte
}

// GatewayService 无状态转发，不重试、不缓存
type GatewayService struct {
	mu     sync.RWMutex
	cfg    config.GatewayConfig
	client *http.Client
}

func NewGatewayService(cfg config.GatewayConfig) *GatewayService {
	return &GatewayService{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// UpdateConfig 配置热更新时替换上游地址和超时
func (s *GatewayService) UpdateConfig(cfg config.GatewayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.client = &http.Client{Timeout: cfg.Timeout}
	logger.Log.Info("Gateway upstream updated",
		zap.String("backend", cfg.BackendURL),
		zap.String("legacy", cfg.LegacyURL),
		zap.Duration("timeout", cfg.Timeout))
}

func (s *GatewayService) Config() config.GatewayConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *GatewayService) snapshot() (config.GatewayConfig, *http.Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.client
}

// Relay 发送请求并读取完整响应；只有网络层失败返回错误（包装 util.ErrTransport）
func (s *GatewayService) Relay(ctx context.Context, r RelayRequest) (*UpstreamResponse, error) {
	cfg, client := s.snapshot()
	base := cfg.BackendURL
	if r.Upstream == UpstreamLegacy {
		base = cfg.LegacyURL
	}
	target := base + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrTransport, err)
	}
	if r.Authorization != "" {
		req.Header.Set("Authorization", r.Authorization)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	tracing.Inject(ctx, req.Header)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		monitoring.UpstreamCounter.WithLabelValues(r.Route, "transport_error").Inc()
		logger.Log.Error("Upstream request failed",
			zap.String("route", r.Route),
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", util.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		monitoring.UpstreamCounter.WithLabelValues(r.Route, "transport_error").Inc()
		return nil, fmt.Errorf("%w: read upstream body: %v", util.ErrTransport, err)
	}

	monitoring.UpstreamCounter.WithLabelValues(r.Route, strconv.Itoa(resp.StatusCode)).Inc()
	logger.Log.Info("Upstream request",
		zap.String("route", r.Route),
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	return &UpstreamResponse{Status: resp.StatusCode, Body: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Login 表单原样转发；上游返回非 JSON 的 2xx 时，在允许回退的环境下返回占位会话
func (s *GatewayService) Login(ctx context.Context, form []byte) (*UpstreamResponse, error) {
	resp, err := s.Relay(ctx, RelayRequest{
		Route:       "login",
		Upstream:    UpstreamBackend,
		Method:      http.MethodPost,
		Path:        "/login",
		ContentType: util.MimeFormURL,
		Body:        form,
	})
	if err != nil || !resp.OK() {
		return resp, err
	}

	if json.Valid(resp.Body) {
		return resp, nil
	}
	if !s.Config().LoginFallback {
		return nil, fmt.Errorf("%w: login response is not JSON", util.ErrUpstream)
	}

	logger.Log.Warn("Login upstream returned non-JSON body, using fallback session")
	data, err := json.Marshal(model.FallbackSession())
	if err != nil {
		return nil, err
	}
	return &UpstreamResponse{Status: http.StatusOK, Body: data, ContentType: util.MimeJSON}, nil
}

func (s *GatewayService) ProfileQuestions(ctx context.Context, auth, surveyID string) (*UpstreamResponse, error) {
	return s.Relay(ctx, RelayRequest{
		Route:         "profile_questions",
		Upstream:      UpstreamBackend,
		Method:        http.MethodGet,
		Path:          "/profile_questions/" + url.PathEscape(surveyID),
		Authorization: auth,
		ContentType:   util.MimeJSON,
	})
}

func (s *GatewayService) AddProfileData(ctx context.Context, auth string, body []byte) (*UpstreamResponse, error) {
	return s.Relay(ctx, RelayRequest{
		Route:         "add_profile_data",
		Upstream:      UpstreamBackend,
		Method:        http.MethodPost,
		Path:          "/add_Profile_data",
		Authorization: auth,
		ContentType:   util.MimeJSON,
		Body:          body,
	})
}

func (s *GatewayService) Questions(ctx context.Context, auth, studyType, questionType string) (*UpstreamResponse, error) {
	return s.Relay(ctx, RelayRequest{
		Route:         "questions",
		Upstream:      UpstreamBackend,
		Method:        http.MethodGet,
		Path:          "/questionnaires/" + url.PathEscape(studyType) + "/" + url.PathEscape(questionType),
		Authorization: auth,
		ContentType:   util.MimeJSON,
	})
}

func (s *GatewayService) AudioQuestionnaires(ctx context.Context, auth, studyTypeID string) (*UpstreamResponse, error) {
	return s.Relay(ctx, RelayRequest{
		Route:         "audio_questionnaires",
		Upstream:      UpstreamLegacy,
		Method:        http.MethodGet,
		Path:          "/questionnaires/" + url.PathEscape(studyTypeID) + "/audio",
		Authorization: auth,
		ContentType:   util.MimeJSON,
	})
}

func (s *GatewayService) SurveyResults(ctx context.Context, auth, contentType string, body []byte) (*UpstreamResponse, error) {
	if contentType == "" {
		contentType = util.MimeJSON
	}
	return s.Relay(ctx, RelayRequest{
		Route:         "survey_results",
		Upstream:      UpstreamBackend,
		Method:        http.MethodPost,
		Path:          "/survey_results",
		Authorization: auth,
		ContentType:   contentType,
		Body:          body,
	})
}

// CheckPhoneDuplicate 任何失败都视为未重复
func (s *GatewayService) CheckPhoneDuplicate(ctx context.Context, auth, phone string) bool {
	body, _ := json.Marshal(map[string]string{"phone_number": phone})
	resp, err := s.Relay(ctx, RelayRequest{
		Route:         "check_phone_duplicate",
		Upstream:      UpstreamLegacy,
		Method:        http.MethodPost,
		Path:          "/check_phone_duplicate",
		Authorization: auth,
		ContentType:   util.MimeJSON,
		Body:          body,
	})
	if err != nil || !resp.OK() {
		return false
	}
	var out model.PhoneDuplicateResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		logger.Log.Warn("Decode phone duplicate response", zap.Error(err))
		return false
	}
	return out.Exists
}

// Health 上游 2xx 视为可用
func (s *GatewayService) Health(ctx context.Context) bool {
	resp, err := s.Relay(ctx, RelayRequest{
		Route:    "health",
		Upstream: UpstreamLegacy,
		Method:   http.MethodGet,
		Path:     "/health",
	})
	return err == nil && resp.OK()
}
