package util

import (
	"errors"
	"fmt"
)

var (
	ErrAuthMissing       = errors.New("authorization header is required")
	ErrUpstream          = errors.New("upstream error")
	ErrTransport         = errors.New("upstream unreachable")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrValidationFailed  = errors.New("validation failed")
	ErrUploadFailed      = errors.New("upload failed")
	ErrSubmissionFailed  = errors.New("survey submission failed")
	ErrNoQuestions       = errors.New("no active questions")
	ErrBusy              = errors.New("operation already in progress")
)

// UpstreamError 上游返回非 2xx，保留状态码和原始响应体
type UpstreamError struct {
	Status int
	Body   []byte
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upstream status %d", e.Status)
}

// Unwrap 401 同时匹配 ErrAuthMissing
func (e *UpstreamError) Unwrap() []error {
	if e.Status == 401 {
		return []error{ErrUpstream, ErrAuthMissing}
	}
	return []error{ErrUpstream}
}

// ValidationError 客户端校验失败，只报告第一处错误
type ValidationError struct {
	QuestionID int
	Message    string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func NewValidationError(questionID int, format string, args ...any) error {
	return &ValidationError{QuestionID: questionID, Message: fmt.Sprintf(format, args...)}
}

// UserMessage 返回可直接展示给用户的提示
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Detail != "" {
		return ue.Detail
	}
	switch {
	case errors.Is(err, ErrAuthMissing):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrDeviceUnavailable):
		return "Unable to access the recording device. Please check permissions and try again."
	case errors.Is(err, ErrUploadFailed):
		return "Failed to upload recording. Please try again."
	case errors.Is(err, ErrSubmissionFailed):
		return "Failed to submit survey. Please try again."
	case errors.Is(err, ErrNoQuestions):
		return "There are no questions for this Survey, please try again"
	case errors.Is(err, ErrTransport):
		return "Network error. Please try again."
	case errors.Is(err, ErrBusy):
		return "Please wait for the current operation to finish."
	}
	return "Something went wrong. Please try again."
}
