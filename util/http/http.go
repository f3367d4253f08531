package http

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrBodyTooLarge = errors.New("response body exceeds the size limit")

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 请求参数。
// Body 支持 nil、io.Reader、[]byte，其余类型按 JSON 序列化；
// Response 为 *[]byte 时保存原始响应体，其余非 nil 值按 JSON 反序列化。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	// ResponseHeader 请求完成后填充
	ResponseHeader map[string][]string

	Timeout time.Duration
	// MaxBodySize 响应体上限（字节），<= 0 表示不限制
	MaxBodySize int64
}

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status %d: %s", e.StatusCode, e.Body)
}
